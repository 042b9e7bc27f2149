package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matside/internal/model"
	"matside/internal/schedule"
)

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	entries := []model.JoinedEntry{
		{ScheduleEntry: model.ScheduleEntry{School: "Early Birds", StartTime: "6:30 AM", City: "Irving", Style: model.StyleBoth}},
		{ScheduleEntry: model.ScheduleEntry{School: "Gracie Academy", StartTime: "6:00 PM", City: "Dallas", Style: model.StyleGi}},
	}

	require.NoError(t, printEntries(&buf, time.Wednesday, schedule.StyleAll, entries))
	out := buf.String()
	assert.Contains(t, out, "Wednesday schedule (All)")
	assert.Contains(t, out, "Early Birds")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Early Birds")), bytes.Index(buf.Bytes(), []byte("Gracie Academy")))
}

func TestPrintEntriesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEntries(&buf, time.Sunday, schedule.StyleGi, nil))
	assert.Contains(t, buf.String(), "No mats found")
}
