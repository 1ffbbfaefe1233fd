//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/khizarrm/outreach/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Query:     "Acme Corp",
			Domain:    "acme.com",
			Status:    model.RunStatusDone,
			Result:    &model.PipelineResult{People: []model.Person{{Name: "Jane Doe"}, {Name: "John Roe"}}},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Query:     "beta industries",
			Status:    model.RunStatusResearching,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "DOMAIN")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "acme.com")
	assert.Contains(t, output, "done")
	assert.Contains(t, output, "beta industries")
	assert.Contains(t, output, "researching")
	assert.Contains(t, output, "2026-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRunsList_TruncatesLongTargets(t *testing.T) {
	now := time.Now()
	runs := []model.Run{{
		ID:        "1",
		Query:     "a company name that is far too long to fit in the column",
		Status:    model.RunStatusFailed,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	assert.Contains(t, buf.String(), "a company name that is far ...")
	assert.Contains(t, buf.String(), "failed")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []model.Run{
		{
			ID:        "1",
			Status:    model.RunStatusDone,
			Result:    &model.PipelineResult{People: []model.Person{{Name: "A"}, {Name: "B"}}, Usage: model.TokenUsage{Cost: 0.5}},
			CreatedAt: now,
			UpdatedAt: now.Add(10 * time.Second),
		},
		{
			ID:        "2",
			Status:    model.RunStatusDone,
			Result:    &model.PipelineResult{People: []model.Person{{Name: "C"}}, Usage: model.TokenUsage{Cost: 0.25}},
			CreatedAt: now,
			UpdatedAt: now.Add(20 * time.Second),
		},
		{ID: "3", Status: model.RunStatusFailed, CreatedAt: now, UpdatedAt: now},
		{ID: "4", Status: model.RunStatusEnriching, CreatedAt: now, UpdatedAt: now},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Done)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.InFlight)
	assert.Equal(t, 3, s.People)
	assert.InDelta(t, 0.75, s.Cost, 1e-9)
	assert.InDelta(t, 15.0, s.AvgDurSecs, 1e-9)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.Contains(t, buf.String(), "Total runs:")
	assert.Contains(t, buf.String(), "$0.7500")
	assert.Contains(t, buf.String(), "15.0s")
}

func TestRunsStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Equal(t, runStats{}, s)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
