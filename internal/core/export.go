package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/JonMunkholm/constituents/internal/logging"
)

// ExportColumns is the fixed header of exported CSV files.
var ExportColumns = []string{"id", "email", "firstName", "lastName", "address", "createdAt", "updatedAt"}

// exportTimeLayout renders timestamps in UTC with millisecond precision.
const exportTimeLayout = "2006-01-02T15:04:05.000Z"

// Export serializes records as CSV with a header row. An empty input fails
// with ErrNoDataFound. Encoding faults are logged and returned as
// ErrCsvGeneration without their technical detail.
func Export(ctx context.Context, records []Record) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.Export")
	defer span.End()
	span.SetAttributes(attribute.Int("export.rows", len(records)))

	if len(records) == 0 {
		return nil, ErrNoDataFound
	}

	data, err := encodeRecords(records)
	if err != nil {
		logging.FromContext(ctx).Error("csv export failed", "rows", len(records), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "csv generation failed")
		return nil, wrapError(ErrCsvGeneration, err)
	}
	return data, nil
}

func encodeRecords(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(ExportColumns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		row := []string{
			rec.ID,
			rec.Email,
			rec.FirstName,
			rec.LastName,
			rec.Address,
			formatExportTime(rec.CreatedAt),
			formatExportTime(rec.UpdatedAt),
		}
		for col, field := range row {
			if !utf8.ValidString(field) {
				return nil, fmt.Errorf("record %d (%s): column %s is not valid UTF-8", i, rec.ID, ExportColumns[col])
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write record %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(exportTimeLayout)
}

// ExportByDateRange filters the store by creation day and exports the result.
func (s *Store) ExportByDateRange(ctx context.Context, start, end time.Time) ([]byte, error) {
	records, err := s.FilterByDateRange(start, end)
	if err != nil {
		return nil, err
	}
	return Export(ctx, records)
}
