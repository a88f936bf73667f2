//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/contact-migrator/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:     "abc12345-6789-0000-0000-000000000000",
			Source: "sendgrid",
			Status: model.RunStatusComplete,
			Summary: &model.RunSummary{
				Created: 12,
				Updated: 3,
				Failed:  1,
				Elapsed: 95 * time.Second,
			},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Source:    "file:contacts.csv",
			Status:    model.RunStatusRunning,
			DryRun:    true,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "sendgrid")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "live")
	assert.Contains(t, output, "1m35s")
	assert.Contains(t, output, "file:contacts.csv")
	assert.Contains(t, output, "dry-run")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatRunsList_LongSource(t *testing.T) {
	runs := []model.Run{{
		ID:     "r1",
		Source: "file:a-very-long-export-file-name-from-sendgrid.csv",
		Status: model.RunStatusFailed,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "file:a-very-long-export-fil...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
