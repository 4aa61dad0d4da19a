package core

// validation.go checks tokenized rows against the constituent row contract
// before they reach Upsert.
//
// The contract is a JSON Schema compiled once per validator:
//   - email: required, well-formed address
//   - firstName, lastName, address: required, not blank
//
// A row that fails is reported with every offending field, e.g.
// "email must be a valid email address; lastName is required".

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const rowSchemaURL = "mem://constituent-row.json"

const rowSchema = `{
	"type": "object",
	"required": ["email", "firstName", "lastName", "address"],
	"properties": {
		"email":     {"type": "string", "format": "email", "pattern": "^[^@\\s]+@"},
		"firstName": {"type": "string", "minLength": 1, "pattern": "\\S"},
		"lastName":  {"type": "string", "minLength": 1, "pattern": "\\S"},
		"address":   {"type": "string", "minLength": 1, "pattern": "\\S"}
	}
}`

// rowFields is the canonical field order used in error messages.
var rowFields = []string{"email", "firstName", "lastName", "address"}

// errRowFormat rejects a row that is not shaped like a candidate at all.
var errRowFormat = &ValidationError{Message: "row does not match the required format"}

// ValidationError describes why a row was rejected.
type ValidationError struct {
	Fields  []string // offending fields in canonical order
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RowValidator validates candidate rows. It is safe for concurrent use.
type RowValidator struct {
	schema *jsonschema.Schema
}

// NewRowValidator compiles the row schema.
func NewRowValidator() (*RowValidator, error) {
	var doc any
	if err := json.Unmarshal([]byte(rowSchema), &doc); err != nil {
		return nil, fmt.Errorf("decode row schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(rowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add row schema: %w", err)
	}
	sch, err := c.Compile(rowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile row schema: %w", err)
	}
	return &RowValidator{schema: sch}, nil
}

// Validate returns nil when c satisfies the row contract, otherwise a
// *ValidationError naming each failing field.
func (v *RowValidator) Validate(c Candidate) error {
	instance := map[string]any{
		"email":     c.Email,
		"firstName": c.FirstName,
		"lastName":  c.LastName,
		"address":   c.Address,
	}

	err := v.schema.Validate(instance)
	if err == nil {
		return nil
	}

	var failed []string
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		failed = failingFields(ve, failed)
	}
	if len(failed) == 0 {
		return errRowFormat
	}

	var fields, msgs []string
	for _, f := range rowFields {
		if !slices.Contains(failed, f) {
			continue
		}
		fields = append(fields, f)
		if f == "email" {
			msgs = append(msgs, "email must be a valid email address")
		} else {
			msgs = append(msgs, f+" is required")
		}
	}
	return &ValidationError{Fields: fields, Message: strings.Join(msgs, "; ")}
}

// failingFields walks the error tree and collects the top-level property of
// every leaf error.
func failingFields(ve *jsonschema.ValidationError, acc []string) []string {
	if len(ve.Causes) == 0 {
		if len(ve.InstanceLocation) > 0 && !slices.Contains(acc, ve.InstanceLocation[0]) {
			acc = append(acc, ve.InstanceLocation[0])
		}
		return acc
	}
	for _, cause := range ve.Causes {
		acc = failingFields(cause, acc)
	}
	return acc
}
