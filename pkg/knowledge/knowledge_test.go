package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := kv.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewStore(store)
}

func TestSediment_InsertsNewEntry(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.Sediment(context.Background(), Context{
		Problem:    "database connection pool exhausted under load",
		ErrorType:  "ConnectionPoolExhausted",
		Technology: "postgres",
		Solution:   "increase max_connections and add a pool timeout",
	})
	require.NoError(t, err)
	assert.Equal(t, "ConnectionPoolExhausted", entry.Title)
	assert.Contains(t, entry.Tags, "postgres")
	assert.Contains(t, entry.Content, "## Problem")
}

func TestSediment_MergesHighlySimilarEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Sediment(ctx, Context{
		Problem:    "database connection pool exhausted under load",
		ErrorType:  "ConnectionPoolExhausted",
		Technology: "postgres",
		Solution:   "increase max_connections",
		Examples:   []CodeExample{{Language: "go", Code: "db.SetMaxOpenConns(50)"}},
	})
	require.NoError(t, err)

	second, err := s.Sediment(ctx, Context{
		Problem:    "database connection pool exhausted under load",
		ErrorType:  "ConnectionPoolExhausted",
		Technology: "postgres",
		Solution:   "increase max_connections",
		Examples:   []CodeExample{{Language: "go", Code: "db.SetMaxIdleConns(10)"}},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.SuccessCount)
	assert.Len(t, second.Examples, 2)
}

func TestSediment_MergeDoesNotDuplicateIdenticalExample(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Sediment(ctx, Context{
		Problem:    "database connection pool exhausted under load",
		ErrorType:  "ConnectionPoolExhausted",
		Technology: "postgres",
		Solution:   "increase max_connections",
		Examples:   []CodeExample{{Language: "go", Code: "db.SetMaxOpenConns(50)"}},
	})
	require.NoError(t, err)

	second, err := s.Sediment(ctx, Context{
		Problem:    "database connection pool exhausted under load",
		ErrorType:  "ConnectionPoolExhausted",
		Technology: "postgres",
		Solution:   "increase max_connections",
		Examples:   []CodeExample{{Language: "go", Code: "db.SetMaxOpenConns(50)"}},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Examples, 1, "re-sedimenting an identical example unions rather than duplicates")
}

func TestMergeExamples(t *testing.T) {
	existing := []CodeExample{{Language: "go", Code: "a"}}
	merged := mergeExamples(existing, []CodeExample{
		{Language: "go", Code: "a"},
		{Language: "go", Code: "b"},
	})
	assert.Equal(t, []CodeExample{{Language: "go", Code: "a"}, {Language: "go", Code: "b"}}, merged)
}

func TestSearch_ScoresAboveFloorOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Sediment(ctx, Context{
		Problem:    "nil pointer dereference in http handler",
		ErrorType:  "NilPointerDereference",
		Technology: "golang",
		Solution:   "check for nil before dereferencing the request body",
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, "nil pointer dereference golang handler", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	noMatch, err := s.Search(ctx, "completely unrelated kubernetes networking query", 5)
	require.NoError(t, err)
	assert.Empty(t, noMatch)
}

func TestIncrementSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry, err := s.Sediment(ctx, Context{Problem: "x", ErrorType: "X"})
	require.NoError(t, err)

	require.NoError(t, s.IncrementSuccess(ctx, entry.ID))
	results, err := s.Search(ctx, "x", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].SuccessCount)
}
