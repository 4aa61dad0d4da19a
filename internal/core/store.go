package core

// store.go implements the in-memory constituent store.
//
// All state lives behind a single RWMutex: the record map keyed by id, the
// insertion order used for paging, and a normalized-email index. Each public
// method holds the lock for exactly one operation, so no caller ever observes
// a half-applied upsert. There are no cross-operation transactions.

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how new record ids are minted.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Store holds constituent records in memory. The zero value is not usable;
// construct one with NewStore.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record // id -> record
	order   []string          // ids in insertion order
	byEmail map[string]string // normalized email -> id

	now   func() time.Time
	newID func() string
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records: make(map[string]Record),
		byEmail: make(map[string]string),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail returns the identity form of an email address.
// Only case is folded; surrounding whitespace is significant.
func NormalizeEmail(email string) string {
	return strings.ToLower(email)
}

// Upsert creates a record for a new email or merges c onto the record that
// already owns the email. A merge overwrites every candidate field and keeps
// the existing id and createdAt.
func (s *Store) Upsert(c Candidate) (Record, error) {
	if strings.TrimSpace(c.Email) == "" {
		return Record{}, ErrMissingEmail
	}
	key := NormalizeEmail(c.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if id, ok := s.byEmail[key]; ok {
		existing := s.records[id]
		existing.Email = c.Email
		existing.FirstName = c.FirstName
		existing.LastName = c.LastName
		existing.Address = c.Address
		existing.UpdatedAt = now
		s.records[id] = existing
		return existing, nil
	}

	rec := Record{
		ID:        s.newID(),
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Address:   c.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	s.byEmail[key] = rec.ID
	return rec, nil
}

// FindByEmail looks up a record by case-insensitive exact email match.
// An empty email is never found.
func (s *Store) FindByEmail(email string) (Record, bool) {
	if email == "" {
		return Record{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Record{}, false
	}
	return s.records[id], true
}

// List returns one page of records in insertion order. Pages past the end
// yield empty data with correct totals.
func (s *Store) List(page, pageSize int) (PaginatedResult, error) {
	if page < 1 {
		return PaginatedResult{}, ErrInvalidPage
	}
	if pageSize < 1 {
		return PaginatedResult{}, ErrInvalidPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	totalPages := (total + pageSize - 1) / pageSize

	result := PaginatedResult{
		Data:       []Record{},
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}

	// Compare pages rather than offsets so huge page numbers cannot overflow.
	if page > totalPages {
		return result, nil
	}

	offset := (page - 1) * pageSize
	end := min(offset+pageSize, total)

	result.Data = make([]Record, 0, end-offset)
	for _, id := range s.order[offset:end] {
		result.Data = append(result.Data, s.records[id])
	}
	return result, nil
}

// FilterByDateRange returns records whose createdAt falls on or between the
// calendar days of start and end. Both bounds are whole days: start is floored
// to midnight and everything before the following midnight of end is included.
func (s *Store) FilterByDateRange(start, end time.Time) ([]Record, error) {
	if start.IsZero() || end.IsZero() {
		return nil, ErrInvalidDateFormat
	}
	if start.After(end) {
		return nil, ErrInvalidDateRange
	}
	from, until := dayRange(start, end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, id := range s.order {
		rec := s.records[id]
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(until) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Reset drops every record. Intended for test isolation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]Record)
	s.byEmail = make(map[string]string)
	s.order = nil
}

// Seed inserts n synthetic records following a sequential pattern
// (constituent1@example.com, First1, Last1, "1 Main St", ...). Existing
// emails are merged like any other upsert.
func (s *Store) Seed(n int) error {
	for i := 1; i <= n; i++ {
		_, err := s.Upsert(Candidate{
			Email:     fmt.Sprintf("constituent%d@example.com", i),
			FirstName: fmt.Sprintf("First%d", i),
			LastName:  fmt.Sprintf("Last%d", i),
			Address:   fmt.Sprintf("%d Main St", i),
		})
		if err != nil {
			return fmt.Errorf("seed record %d: %w", i, err)
		}
	}
	return nil
}
