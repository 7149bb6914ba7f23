package domain

import (
	"fmt"
	"time"
)

// OutcomeKey identifies a single priced outcome at one book. It is comparable
// so it can key a map; HasPoint distinguishes "no line" from a zero line.
type OutcomeKey struct {
	EventID     string
	MarketKey   string
	BookKey     string
	OutcomeName string
	HasPoint    bool
	Point       float64
}

// String renders the key in a stable, log-friendly form.
func (k OutcomeKey) String() string {
	if !k.HasPoint {
		return fmt.Sprintf("%s:%s:%s:%s", k.EventID, k.MarketKey, k.BookKey, k.OutcomeName)
	}
	return fmt.Sprintf("%s:%s:%s:%s:%g", k.EventID, k.MarketKey, k.BookKey, k.OutcomeName, k.Point)
}

// OutcomeRecord is the normalized odds for one outcome at one book, as
// received on the stream or from the bootstrap endpoint.
type OutcomeRecord struct {
	EventID     string   `json:"event_id"`
	SportKey    string   `json:"sport_key"`
	MarketKey   string   `json:"market_key"`
	BookKey     string   `json:"book_key"`
	OutcomeName string   `json:"outcome_name"`
	Point       *float64 `json:"point,omitempty"`

	HomeTeam    string `json:"home_team,omitempty"`
	AwayTeam    string `json:"away_team,omitempty"`
	EventStatus string `json:"event_status,omitempty"`

	Price              int      `json:"price"` // American odds
	DecimalOdds        float64  `json:"decimal_odds"`
	ImpliedProbability float64  `json:"implied_probability"`
	NoVigProbability   *float64 `json:"no_vig_probability,omitempty"`
	FairPrice          *int     `json:"fair_price,omitempty"`
	Edge               *float64 `json:"edge,omitempty"` // signed fraction, 0.04 == 4%
	SharpConsensus     *float64 `json:"sharp_consensus,omitempty"`
	MarketType         string   `json:"market_type,omitempty"`
	VigMethod          string   `json:"vig_method,omitempty"`

	VendorLastUpdate time.Time `json:"vendor_last_update"`
	ReceivedAt       time.Time `json:"received_at"`
}

// Key returns the store identity of the record.
func (r OutcomeRecord) Key() OutcomeKey {
	k := OutcomeKey{
		EventID:     r.EventID,
		MarketKey:   r.MarketKey,
		BookKey:     r.BookKey,
		OutcomeName: r.OutcomeName,
	}
	if r.Point != nil {
		k.HasPoint = true
		k.Point = *r.Point
	}
	return k
}

// AlertKey returns the alert identity of the record. It deliberately drops
// the market key.
func (r OutcomeRecord) AlertKey() AlertKey {
	k := AlertKey{
		EventID:     r.EventID,
		BookKey:     r.BookKey,
		OutcomeName: r.OutcomeName,
	}
	if r.Point != nil {
		k.HasPoint = true
		k.Point = *r.Point
	}
	return k
}

// DataAge is how old the vendor quote is at now.
func (r OutcomeRecord) DataAge(now time.Time) time.Duration {
	if r.VendorLastUpdate.IsZero() {
		return 0
	}
	return now.Sub(r.VendorLastUpdate)
}

// OutcomeView is an OutcomeRecord annotated with its data age at read time.
type OutcomeView struct {
	OutcomeRecord
	DataAgeSeconds float64 `json:"data_age_seconds"`
}

// ViewAt annotates the record with its age at now.
func (r OutcomeRecord) ViewAt(now time.Time) OutcomeView {
	return OutcomeView{OutcomeRecord: r, DataAgeSeconds: r.DataAge(now).Seconds()}
}
