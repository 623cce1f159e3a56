package signal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]int{
		"3":       3,
		" 4.9\n":  4,
		"-1":      -1,
		"":        0,
		"garbage": 0,
		"NaN":     0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "%q", in)
	}
}

func TestParseLadder(t *testing.T) {
	got := ParseLadder("[101.5, 99; 120 | 99.0\n87\tbad]")
	assert.Equal(t, []float64{120, 101.5, 99, 87}, got)

	assert.Empty(t, ParseLadder(""))
	assert.Empty(t, ParseLadder("[]"))
}

func TestFileSourceFolderRules(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, longFile), []byte("5"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, shortFile), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ladderFile), []byte("1,3,2"), 0o644))

	require.NoError(t, os.Mkdir(filepath.Join(root, "ETH"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ETH", longFile), []byte("2.0"), 0o644))

	src := NewFileSource(func() string { return root })

	assert.Equal(t, Levels{Long: 5, Short: 1}, src.Levels("btc"))
	assert.Equal(t, []float64{3, 2, 1}, src.PriceLadder("BTC"))

	assert.Equal(t, Levels{Long: 2, Short: 0}, src.Levels("ETH"))
	assert.Nil(t, src.PriceLadder("ETH"))

	// no folder for XRP: never falls back to the BTC files
	assert.Equal(t, Levels{}, src.Levels("XRP"))
}
