package leveldb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempDB(t *testing.T) *DB {
	t.Helper()
	dir, err := os.MkdirTemp("", "minicortex-leveldb-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB(t *testing.T) {
	db := openTempDB(t)

	t.Run("get missing name", func(t *testing.T) {
		_, err := db.Get("nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, db.Set("demo", []byte(`{"version":1}`)))

		v, err := db.Get("demo")
		require.NoError(t, err)
		assert.Equal(t, `{"version":1}`, string(v))
	})

	t.Run("overwrite replaces", func(t *testing.T) {
		require.NoError(t, db.Set("demo", []byte("first")))
		require.NoError(t, db.Set("demo", []byte("second")))

		v, err := db.Get("demo")
		require.NoError(t, err)
		assert.Equal(t, "second", string(v))
	})

	t.Run("list returns saved names", func(t *testing.T) {
		require.NoError(t, db.Set("alpha", []byte("a")))
		require.NoError(t, db.Set("beta", []byte("b")))

		names, err := db.List()
		require.NoError(t, err)
		assert.Contains(t, names, "alpha")
		assert.Contains(t, names, "beta")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, db.Set("gone", []byte("x")))
		require.NoError(t, db.Delete("gone"))

		_, err := db.Get("gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete missing name is not an error", func(t *testing.T) {
		assert.NoError(t, db.Delete("never-existed"))
	})
}
