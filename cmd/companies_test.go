//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khizarrm/outreach/internal/model"
)

func strPtr(s string) *string { return &s }

func TestFormatCompanies(t *testing.T) {
	updated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	companies := []model.Company{
		{ID: 1, Name: "Acme", Website: strPtr("https://acme.com"), Industry: strPtr("Manufacturing"), EmployeeCount: 3, UpdatedAt: updated},
		{ID: 2, Name: "Beta", EmployeeCount: 1, UpdatedAt: updated},
	}

	var buf bytes.Buffer
	formatCompanies(&buf, companies)

	out := buf.String()
	assert.Contains(t, out, "EMPLOYEES")
	assert.Contains(t, out, "https://acme.com")
	assert.Contains(t, out, "Manufacturing")
	assert.Contains(t, out, "2026-03-01 09:00")
	assert.Contains(t, out, "Beta")
	assert.Contains(t, out, "-")
}

func TestFormatEmployees(t *testing.T) {
	var buf bytes.Buffer
	formatEmployees(&buf, []model.Employee{
		{ID: 4, Name: "Jane Doe", Title: "CEO", Email: "jane@acme.com"},
	})

	out := buf.String()
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Jane Doe")
	assert.Contains(t, out, "jane@acme.com")
}

func TestWriteIndented(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeIndented(&buf, []model.Employee{{ID: 1, Name: "Jane"}}))
	assert.Contains(t, buf.String(), "\n  {\n")
	assert.Contains(t, buf.String(), `"name": "Jane"`)
}
