package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

func TestAppendListOpts(t *testing.T) {
	since := time.Unix(100, 0)
	q, args := appendListOpts("SELECT * FROM alerts WHERE 1=1", nil, "detected_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t,
		"SELECT * FROM alerts WHERE 1=1 AND detected_at >= $1 ORDER BY detected_at DESC LIMIT $2 OFFSET $3", q)
	assert.Equal(t, []any{since, 10, 20}, args)
}

func TestAppendListOptsContinuesArgNumbering(t *testing.T) {
	q, args := appendListOpts("SELECT * FROM audit_log WHERE event = $1", []any{"x"}, "created_at",
		domain.ListOpts{Limit: 5})
	assert.Equal(t, "SELECT * FROM audit_log WHERE event = $1 ORDER BY created_at DESC LIMIT $2", q)
	assert.Equal(t, []any{"x", 5}, args)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/odds?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "odds"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}
