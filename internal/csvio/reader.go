// Package csvio turns uploaded CSV files into field maps keyed by canonical
// constituent column names.
//
// Headers are matched loosely ("First Name", "FIRSTNAME", "first_name" all
// map to firstName). Unknown columns are ignored, a UTF-8 BOM is skipped, and
// invalid UTF-8 is replaced rather than rejected. Rows missing a column are
// still returned; deciding whether a row is acceptable is the caller's job.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("csv file is empty")

// Canonical column keys.
const (
	ColEmail     = "email"
	ColFirstName = "firstName"
	ColLastName  = "lastName"
	ColAddress   = "address"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// headerAliases maps a folded header (see foldHeader) to its canonical key.
var headerAliases = map[string]string{
	"email":        ColEmail,
	"emailaddress": ColEmail,
	"firstname":    ColFirstName,
	"lastname":     ColLastName,
	"address":      ColAddress,
}

// ReadRows reads every data row of r. Each row map holds the canonical keys
// found in the header; cells are trimmed. Blank lines and rows with only
// empty cells are skipped.
func ReadRows(r io.Reader) ([]map[string]string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[int]string, len(header))
	for i, h := range header {
		if key, ok := headerAliases[foldHeader(h)]; ok {
			if _, dup := columnIndex(columns, key); !dup {
				columns[i] = key
			}
		}
	}

	var rows []map[string]string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(record) {
			continue
		}

		row := make(map[string]string, len(columns))
		for i, key := range columns {
			if i < len(record) {
				row[key] = cleanCell(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// foldHeader lower-cases h and drops spaces, underscores and dashes.
func foldHeader(h string) string {
	h = strings.TrimPrefix(h, string(utf8BOM))
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// cleanCell trims whitespace, strips the ="..." wrapper spreadsheets use to
// keep text literal, and replaces invalid UTF-8.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func columnIndex(columns map[int]string, key string) (int, bool) {
	for i, k := range columns {
		if k == key {
			return i, true
		}
	}
	return 0, false
}
