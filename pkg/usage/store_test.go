package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{
		Path:      filepath.Join(t.TempDir(), "usage.db"),
		Retention: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndTotals(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.Append(ctx, Record{
		RequestID:        "r1",
		Operation:        "chat",
		Provider:         "openai",
		Model:            "gpt-4o",
		PromptTokens:     100,
		CompletionTokens: 50,
		LatencyMS:        420,
		CostUSD:          0.00075,
		Status:           "success",
	})
	s.Append(ctx, Record{
		RequestID:    "r2",
		Operation:    "embedding",
		Provider:     "cohere",
		Model:        "embed-v3",
		PromptTokens: 10,
		Status:       "success",
	})

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, totals.Requests)
	assert.EqualValues(t, 110, totals.PromptTokens)
	assert.EqualValues(t, 50, totals.CompletionTokens)
	assert.InDelta(t, 0.00075, totals.CostUSD, 1e-9)
}

func TestTotalsByProvider(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Append(ctx, Record{RequestID: "a", Provider: "openai", Operation: "chat", Model: "m", Status: "success"})
	}
	s.Append(ctx, Record{RequestID: "b", Provider: "anthropic", Operation: "chat", Model: "m", Status: "success"})

	per, err := s.TotalsByProvider(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, per["openai"].Requests)
	assert.EqualValues(t, 1, per["anthropic"].Requests)
}

func TestPruneRemovesOldRows(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.Append(ctx, Record{
		RequestID: "old",
		Provider:  "p", Operation: "chat", Model: "m", Status: "success",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	})
	s.Append(ctx, Record{
		RequestID: "fresh",
		Provider:  "p", Operation: "chat", Model: "m", Status: "success",
	})

	s.prune()

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, totals.Requests)
}

func TestEstimateCost(t *testing.T) {
	// gpt-4o: $2.50/M prompt, $10/M completion.
	cost := EstimateCost("gpt-4o", 1_000_000, 0)
	assert.InDelta(t, 2.50, cost, 1e-9)

	cost = EstimateCost("gpt-4o", 0, 1_000_000)
	assert.InDelta(t, 10.0, cost, 1e-9)

	// Dated revisions inherit the family price by prefix; the longest
	// prefix wins (gpt-4o-mini, not gpt-4o).
	cost = EstimateCost("gpt-4o-mini-2024-07-18", 1_000_000, 0)
	assert.InDelta(t, 0.15, cost, 1e-9)

	// Unknown models cost zero.
	assert.Zero(t, EstimateCost("totally-unknown", 1000, 1000))
}
