package dbutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalize_RewritesLimit(t *testing.T) {
	query, args := Finalize("SELECT key FROM index_blobs WHERE key=? LIMIT ?,?", []interface{}{"k", 0, 1})
	require.Equal(t, "SELECT key FROM index_blobs WHERE key=$1 LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"k", 1, 0}, args)
}

func TestFinalize_Rebind(t *testing.T) {
	query, args := Finalize("DELETE FROM index_blobs WHERE key=?", []interface{}{"k"})
	require.Equal(t, "DELETE FROM index_blobs WHERE key=$1", query)
	require.Equal(t, []interface{}{"k"}, args)
}
