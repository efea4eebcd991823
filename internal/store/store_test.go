package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdate_DeterministicSQL(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sql, args, err := buildUpdate("orders",
		map[string]any{"restaurant_id": "rest-1", "order_number": "100047"},
		map[string]any{"status": "dispatched", "updated_at": now, "dispatched_at": now},
	)

	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "orders" SET "dispatched_at" = $1, "status" = $2, "updated_at" = $3 WHERE "order_number" = $4 AND "restaurant_id" = $5`,
		sql)
	assert.Equal(t, []any{now, "dispatched", now, "100047", "rest-1"}, args)
}

func TestBuildUpdate_QuotesIdentifiers(t *testing.T) {
	sql, _, err := buildUpdate(`orders"; DROP TABLE x; --`,
		map[string]any{"id": 1},
		map[string]any{"status": "ready"},
	)

	require.NoError(t, err)
	assert.Contains(t, sql, `"orders""; DROP TABLE x; --"`)
}

func TestBuildUpdate_RejectsEmptyInput(t *testing.T) {
	_, _, err := buildUpdate("orders", nil, map[string]any{"status": "ready"})
	assert.ErrorIs(t, err, ErrEmptyUpdate)

	_, _, err = buildUpdate("orders", map[string]any{"id": 1}, nil)
	assert.ErrorIs(t, err, ErrEmptyUpdate)
}
