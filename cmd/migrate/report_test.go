package main

import (
	"strings"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
)

func TestPrintStatus(t *testing.T) {
	var out strings.Builder
	printStatus(&out, []*goose.MigrationStatus{
		{
			Source:    &goose.Source{Path: "migrations/20261001090000_create_carts.sql", Version: 20261001090000},
			State:     goose.StateApplied,
			AppliedAt: time.Date(2026, 10, 1, 9, 5, 0, 0, time.UTC),
		},
		{
			Source: &goose.Source{Path: "migrations/20261001090100_create_orders.sql", Version: 20261001090100},
			State:  goose.StatePending,
		},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "2026-10-01 09:05:00")
	assert.Contains(t, lines[1], "20261001090000_create_carts.sql")
	assert.Contains(t, lines[2], "pending")
	assert.Contains(t, lines[2], " - ")
}

func TestResultFields(t *testing.T) {
	fields := resultFields(&goose.MigrationResult{
		Source:    &goose.Source{Path: "x/20261001090200_create_payments.sql", Version: 20261001090200},
		Direction: "up",
		Duration:  1500 * time.Millisecond,
	})
	assert.Equal(t, int64(20261001090200), fields["version"])
	assert.Equal(t, "20261001090200_create_payments.sql", fields["file"])
	assert.Equal(t, int64(1500), fields["duration_ms"])
}
