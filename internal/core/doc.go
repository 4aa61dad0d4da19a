// Package core provides the business logic of the constituent records service.
//
// The package has no knowledge of HTTP, sessions or CSV text. It can be used by
// web handlers, tools, or tests without modification.
//
// # Architecture
//
//   - [Store]: the in-memory record set. Upsert deduplicates by case-insensitive
//     email; List pages in insertion order; FilterByDateRange selects by creation day.
//   - [Pipeline]: batch ingestion. Rows are validated, then upserted in chunks
//     whose members run concurrently. A bad row is reported, never fatal.
//   - [Export]: CSV serialization of a filtered record set.
//   - [BatchLimiter]: caps how many batches run at once across requests.
//
// A process owns exactly one Store, created by the composition root and handed
// to whatever needs it:
//
//	store := core.NewStore()
//	pipeline, err := core.NewPipeline(store, core.WithChunkSize(100))
//	result, err := pipeline.ProcessRows(ctx, rows)
//
// # Error Handling
//
// Operations fail with *[Error] values carrying a stable code. Compare with
// errors.Is against the sentinels ([ErrMissingEmail], [ErrNoDataFound], ...) and
// use [MapError] to build a client-safe message. NO_DATA_FOUND is an expected
// outcome of an export over an empty range; CSV_GENERATION_ERROR is a fault.
package core
