package billing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPriceTable(t *testing.T) {
	table := DefaultPriceTable()

	cost, ok := table.Cost("word-counter")
	require.True(t, ok)
	assert.Equal(t, int64(1000), cost)
	assert.Equal(t, 1.0, table.CostCents("word-counter"))
	assert.Equal(t, 0.5, table.CostCents("case-converter"))

	_, ok = table.Cost("nope")
	assert.False(t, ok)

	assert.Len(t, table.Tools(), 9)
	assert.Equal(t, "base64", table.Tools()[0])
}

func writePriceFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPriceTable(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		table, err := LoadPriceTable("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPriceTable().Tools(), table.Tools())
	})

	t.Run("overrides", func(t *testing.T) {
		table, err := LoadPriceTable(writePriceFile(t, "prices:\n  word-counter: 2500\n"))
		require.NoError(t, err)

		cost, _ := table.Cost("word-counter")
		assert.Equal(t, int64(2500), cost)
		cost, _ = table.Cost("base64")
		assert.Equal(t, int64(500), cost)
	})

	t.Run("non-positive price", func(t *testing.T) {
		_, err := LoadPriceTable(writePriceFile(t, "prices:\n  base64: 0\n"))
		assert.ErrorContains(t, err, "must be positive")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := LoadPriceTable(writePriceFile(t, "prices: [\n"))
		assert.ErrorContains(t, err, "failed to parse price file")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPriceTable(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read price file")
	})
}
