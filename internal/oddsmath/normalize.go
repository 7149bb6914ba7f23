package oddsmath

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// Normalize fills derivable fields that the producer left empty and stamps
// the receipt time. It rejects records that cannot be keyed.
func Normalize(rec *domain.OutcomeRecord, receivedAt time.Time) error {
	switch {
	case rec.EventID == "":
		return errors.New("oddsmath: normalize: missing event_id")
	case rec.MarketKey == "":
		return errors.New("oddsmath: normalize: missing market_key")
	case rec.BookKey == "":
		return errors.New("oddsmath: normalize: missing book_key")
	case rec.OutcomeName == "":
		return errors.New("oddsmath: normalize: missing outcome_name")
	}

	if rec.Price == 0 && rec.DecimalOdds > 1 {
		if am, err := DecimalToAmerican(rec.DecimalOdds); err == nil {
			rec.Price = am
		}
	}
	if rec.DecimalOdds == 0 && rec.Price != 0 {
		dec, err := AmericanToDecimal(rec.Price)
		if err != nil {
			return fmt.Errorf("oddsmath: normalize: %w", err)
		}
		rec.DecimalOdds = dec
	}
	if rec.ImpliedProbability == 0 && rec.DecimalOdds > 0 {
		p, err := DecimalToImpliedProbability(rec.DecimalOdds)
		if err == nil {
			rec.ImpliedProbability = p
		}
	}
	if rec.FairPrice == nil && rec.NoVigProbability != nil {
		if fp, err := ProbabilityToAmerican(*rec.NoVigProbability); err == nil {
			rec.FairPrice = &fp
		}
	}

	rec.ReceivedAt = receivedAt
	if rec.VendorLastUpdate.IsZero() {
		rec.VendorLastUpdate = receivedAt
	}
	return nil
}
