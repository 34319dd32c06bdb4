package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotSource tells which stage captured a price
type SnapshotSource string

const (
	SnapshotSourceSpot    SnapshotSource = "spot"
	SnapshotSourceHistory SnapshotSource = "history"
)

// ConflictPolicy decides what a spot upsert does when the day already has a row
type ConflictPolicy string

const (
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictSkip      ConflictPolicy = "skip"
)

// ParseConflictPolicy validates a policy name
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case ConflictOverwrite, ConflictSkip:
		return ConflictPolicy(s), nil
	default:
		return "", errors.New("conflict policy must be overwrite or skip")
	}
}

// PriceSnapshot pins a price to one asset and one calendar day.
// At most one snapshot exists per (ProviderID, Day).
type PriceSnapshot struct {
	ID         uuid.UUID
	ProviderID string
	Day        Day
	Price      decimal.Decimal
	Currency   string
	Source     SnapshotSource
	CapturedAt time.Time
}

// NewPriceSnapshot builds a snapshot with a fresh identifier
func NewPriceSnapshot(providerID string, day Day, price decimal.Decimal, currency string, source SnapshotSource, capturedAt time.Time) *PriceSnapshot {
	return &PriceSnapshot{
		ID:         uuid.New(),
		ProviderID: providerID,
		Day:        day,
		Price:      price,
		Currency:   currency,
		Source:     source,
		CapturedAt: capturedAt.UTC(),
	}
}

// Validate ensures the snapshot can be persisted
func (s *PriceSnapshot) Validate() error {
	if s.ProviderID == "" {
		return errors.New("provider id is required")
	}
	if _, err := ParseDay(string(s.Day)); err != nil {
		return err
	}
	if s.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if s.Source != SnapshotSourceSpot && s.Source != SnapshotSourceHistory {
		return errors.New("snapshot source must be spot or history")
	}
	return nil
}

// PricePoint is one sample of a provider time series
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// LastPointPerDay buckets points by UTC day and keeps the latest sample of each day
func LastPointPerDay(points []PricePoint) map[Day]PricePoint {
	byDay := make(map[Day]PricePoint)
	for _, p := range points {
		day := DayOf(p.Time)
		if prev, ok := byDay[day]; ok && prev.Time.After(p.Time) {
			continue
		}
		byDay[day] = p
	}
	return byDay
}
