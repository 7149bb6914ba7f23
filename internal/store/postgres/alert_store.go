package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// AlertStore implements domain.AlertStore and doubles as an alert sink.
type AlertStore struct {
	pool *pgxpool.Pool
}

var _ domain.AlertStore = (*AlertStore)(nil)

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Name implements alerts.Sink.
func (s *AlertStore) Name() string { return "postgres" }

// Deliver implements alerts.Sink.
func (s *AlertStore) Deliver(ctx context.Context, a domain.AlertRecord) error {
	return s.Insert(ctx, a)
}

// Insert stores a fired alert. Re-inserting the same ID is a no-op.
func (s *AlertStore) Insert(ctx context.Context, a domain.AlertRecord) error {
	const query = `
		INSERT INTO alerts (id, event_id, sport_key, market_key, book_key, outcome_name, point,
			home_team, away_team, price, edge, data_age_secs, detected_at, dismissed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.EventID, a.SportKey, a.MarketKey, a.BookKey, a.OutcomeName, a.Point,
		a.HomeTeam, a.AwayTeam, a.Price, a.Edge, a.DataAge, a.DetectedAt, a.Dismissed,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", a.ID, err)
	}
	return nil
}

// MarkDismissed flags an alert as dismissed.
func (s *AlertStore) MarkDismissed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET dismissed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: dismiss alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: dismiss alert %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns alerts newest first.
func (s *AlertStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.AlertRecord, error) {
	query, args := appendListOpts(`
		SELECT id, event_id, sport_key, market_key, book_key, outcome_name, point,
			home_team, away_team, price, edge, data_age_secs, detected_at, dismissed
		FROM alerts WHERE 1=1`, nil, "detected_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		var a domain.AlertRecord
		if err := rows.Scan(&a.ID, &a.EventID, &a.SportKey, &a.MarketKey, &a.BookKey, &a.OutcomeName,
			&a.Point, &a.HomeTeam, &a.AwayTeam, &a.Price, &a.Edge, &a.DataAge, &a.DetectedAt, &a.Dismissed); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		a.Key = domain.AlertKey{EventID: a.EventID, BookKey: a.BookKey, OutcomeName: a.OutcomeName}
		if a.Point != nil {
			a.Key.HasPoint, a.Key.Point = true, *a.Point
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list alerts rows: %w", err)
	}
	return out, nil
}
