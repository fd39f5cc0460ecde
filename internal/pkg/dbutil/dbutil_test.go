package dbutil

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRewritesLimit(t *testing.T) {
	query, args := Finalize("SELECT id FROM t WHERE a = ? LIMIT ?,?", []interface{}{"x", uint(0), uint(10)})
	require.Equal(t, "SELECT id FROM t WHERE a = $1 LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"x", uint(10), uint(0)}, args)
}

func TestFinalizeWithoutLimit(t *testing.T) {
	query, args := Finalize("SELECT id FROM t WHERE a = ? AND b = ?", []interface{}{1, 2})
	require.Equal(t, "SELECT id FROM t WHERE a = $1 AND b = $2", query)
	require.Equal(t, []interface{}{1, 2}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.True(t, IsConflict(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(fmt.Errorf("other")))
}
