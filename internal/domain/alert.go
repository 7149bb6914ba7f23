package domain

import (
	"fmt"
	"time"
)

// AlertKey identifies an alertable outcome: book-scoped and market-agnostic.
type AlertKey struct {
	EventID     string
	BookKey     string
	OutcomeName string
	HasPoint    bool
	Point       float64
}

// String is also used as the dedup key in shared caches.
func (k AlertKey) String() string {
	if !k.HasPoint {
		return fmt.Sprintf("%s:%s:%s", k.EventID, k.BookKey, k.OutcomeName)
	}
	return fmt.Sprintf("%s:%s:%s:%g", k.EventID, k.BookKey, k.OutcomeName, k.Point)
}

// AlertRecord is a single fired alert along with a snapshot of the outcome
// that triggered it.
type AlertRecord struct {
	ID          string    `json:"id"`
	Key         AlertKey  `json:"-"`
	EventID     string    `json:"event_id"`
	SportKey    string    `json:"sport_key"`
	MarketKey   string    `json:"market_key"`
	BookKey     string    `json:"book_key"`
	OutcomeName string    `json:"outcome_name"`
	Point       *float64  `json:"point,omitempty"`
	HomeTeam    string    `json:"home_team,omitempty"`
	AwayTeam    string    `json:"away_team,omitempty"`
	Price       int       `json:"price"`
	Edge        float64   `json:"edge"`
	DataAge     float64   `json:"data_age_seconds"`
	DetectedAt  time.Time `json:"detected_at"`
	Dismissed   bool      `json:"dismissed"`
}

// EdgePercent returns the edge scaled to percent.
func (a AlertRecord) EdgePercent() float64 {
	return a.Edge * 100
}

// NewAlertRecord snapshots rec into an alert detected at now.
func NewAlertRecord(id string, rec OutcomeRecord, now time.Time) AlertRecord {
	a := AlertRecord{
		ID:          id,
		Key:         rec.AlertKey(),
		EventID:     rec.EventID,
		SportKey:    rec.SportKey,
		MarketKey:   rec.MarketKey,
		BookKey:     rec.BookKey,
		OutcomeName: rec.OutcomeName,
		Point:       rec.Point,
		HomeTeam:    rec.HomeTeam,
		AwayTeam:    rec.AwayTeam,
		Price:       rec.Price,
		DataAge:     rec.DataAge(now).Seconds(),
		DetectedAt:  now,
	}
	if rec.Edge != nil {
		a.Edge = *rec.Edge
	}
	return a
}
