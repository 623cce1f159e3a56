package signal

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Levels are the opaque long/short strengths published by the upstream model.
type Levels struct {
	Long  int `json:"long"`
	Short int `json:"short"`
}

// Source is polled once per decision; implementations never fail, they degrade to neutral values.
type Source interface {
	Levels(symbol string) Levels
	// PriceLadder returns target prices highest first.
	PriceLadder(symbol string) []float64
}

const (
	longFile   = "long_dca_signal.txt"
	shortFile  = "short_dca_signal.txt"
	ladderFile = "low_bound_prices.html"
)

// FileSource reads per-coin signal files. BTC lives in the root dir, other coins in <root>/<SYM>
// and only when that folder exists.
type FileSource struct {
	root func() string
}

// NewFileSource takes a func so the root can follow hot-reloaded settings.
func NewFileSource(root func() string) *FileSource {
	return &FileSource{root: root}
}

func (s *FileSource) folder(symbol string) (string, bool) {
	root := s.root()
	if root == "" {
		root = "."
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "BTC" {
		return root, true
	}
	sub := filepath.Join(root, sym)
	if st, err := os.Stat(sub); err == nil && st.IsDir() {
		return sub, true
	}
	return "", false
}

func (s *FileSource) Levels(symbol string) Levels {
	dir, ok := s.folder(symbol)
	if !ok {
		return Levels{}
	}
	return Levels{
		Long:  readLevel(filepath.Join(dir, longFile)),
		Short: readLevel(filepath.Join(dir, shortFile)),
	}
}

func (s *FileSource) PriceLadder(symbol string) []float64 {
	dir, ok := s.folder(symbol)
	if !ok {
		return nil
	}
	raw, err := os.ReadFile(filepath.Join(dir, ladderFile))
	if err != nil {
		return nil
	}
	return ParseLadder(string(raw))
}

func readLevel(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return ParseLevel(string(raw))
}

// ParseLevel truncates a numeric text to an int, 0 when unparseable.
func ParseLevel(text string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// ParseLadder accepts list literals and comma/semicolon/pipe/whitespace separated prices.
func ParseLadder(text string) []float64 {
	text = strings.Trim(strings.TrimSpace(text), "[]()")
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ',', ';', '|', ' ', '\n', '\t', '\r', '[', ']', '(', ')':
			return true
		}
		return false
	})

	vals := lo.FilterMap(fields, func(f string, _ int) (float64, bool) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	})
	vals = lo.UniqBy(vals, func(v float64) float64 {
		return math.Round(v*1e12) / 1e12
	})
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	return vals
}
