package core

import "time"

// Record is a constituent tracked by the store.
type Record struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Candidate is an upsert payload: a Record without identity or timestamps.
type Candidate struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
}

// CandidateFromFields builds a Candidate from a tokenized row keyed by
// canonical column names (email, firstName, lastName, address).
func CandidateFromFields(fields map[string]string) Candidate {
	return Candidate{
		Email:     fields["email"],
		FirstName: fields["firstName"],
		LastName:  fields["lastName"],
		Address:   fields["address"],
	}
}

// PaginatedResult is one page of records. It is computed per query and never cached.
type PaginatedResult struct {
	Data       []Record `json:"data"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
}

// RowError describes one failed input of a batch.
type RowError struct {
	Row   int       `json:"row"` // 1-based position in the submitted input
	Error string    `json:"error"`
	Data  Candidate `json:"data"`
}

// BatchUploadResult summarizes one ingestion call.
type BatchUploadResult struct {
	Successful     int        `json:"successful"`
	Failed         int        `json:"failed"`
	TotalProcessed int        `json:"totalProcessed"`
	Errors         []RowError `json:"errors"`
}
