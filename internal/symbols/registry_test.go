package symbols

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedDefault(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "S&P 500", r.Section("us_indices")["^GSPC"])
	assert.Equal(t, "台積電", r.Section("tw_markets")["2330.TW"])
	assert.NotEmpty(t, r.Section("crypto"))
	assert.Len(t, r.Ratios, 7)

	def, ok := r.Ratio("gold_silver")
	require.True(t, ok)
	assert.Equal(t, "GC=F", def.Numerator)
	assert.Equal(t, "SI=F", def.Denominator)
	assert.Equal(t, "20y", def.Period)

	_, ok = r.Ratio("nonexistent")
	assert.False(t, ok)
}

func TestLoad_FileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.yaml")
	content := `
sections:
  us_indices:
    "^GSPC": S&P 500
ratios:
  - id: only
    name: Only
    num: A
    denom: B
    period: max
    unit: x
    desc: test
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, r.Ratios, 1)
	assert.Empty(t, r.Section("crypto"))
}

func TestLoad_RejectsDuplicateRatioIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.yaml")
	content := `
ratios:
  - {id: dup, name: A, num: X, denom: Y, period: max, unit: x, desc: ""}
  - {id: dup, name: B, num: X, denom: Z, period: max, unit: x, desc: ""}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Bitcoin", r.DisplayName("BTC-USD"))
	assert.Equal(t, "UNKNOWN", r.DisplayName("UNKNOWN"))
}

func TestSortedSymbols(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	syms := r.SortedSymbols("metals_futures")
	assert.Equal(t, []string{"GC=F", "HG=F", "PA=F", "PL=F", "SI=F"}, syms)
}
