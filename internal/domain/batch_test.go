package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchKey(t *testing.T) {
	date := time.Date(2030, 3, 15, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, "Leg Day-2030-03-15", BatchKey("Leg Day", date))

	// The key depends only on the calendar day in UTC.
	sameDay := time.Date(2030, 3, 15, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, BatchKey("Leg Day", date), BatchKey("Leg Day", sameDay))

	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "Leg Day-2030-03-15", BatchKey("Leg Day", time.Date(2030, 3, 16, 2, 0, 0, 0, tokyo)))
}

func TestBatchDate(t *testing.T) {
	got := BatchDate(time.Date(2030, 3, 15, 18, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC), got)
}
