package config

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Settings is one validated snapshot of the hot-reloaded trading tunables.
type Settings struct {
	Coins               []string
	MainNeuralDir       string
	TradeStartLevel     int
	StartAllocationPct  float64
	DCAMultiplier       float64
	DCALevels           []float64
	MaxDCABuysPerWindow int
	DCACooldownMinutes  int
	PMStartPctNoDCA     float64
	PMStartPctWithDCA   float64
	TrailingGapPct      float64
}

// TrailSignature identifies the settings a trailing state was built under.
type TrailSignature struct {
	GapPct       float64
	StartNoDCA   float64
	StartWithDCA float64
}

var errNotFinite = errors.New("значение не является конечным числом")

const (
	MinStartLevel = 1
	MaxStartLevel = 7
)

func DefaultSettings() Settings {
	return Settings{
		Coins:               []string{"BTC", "ETH", "XRP", "BNB", "DOGE"},
		TradeStartLevel:     3,
		StartAllocationPct:  0.005,
		DCAMultiplier:       2.0,
		DCALevels:           []float64{-2.5, -5.0, -10.0, -20.0, -30.0, -40.0, -50.0},
		MaxDCABuysPerWindow: 2,
		DCACooldownMinutes:  60,
		PMStartPctNoDCA:     5.0,
		PMStartPctWithDCA:   2.5,
		TrailingGapPct:      0.5,
	}
}

func (s Settings) TrailSignature() TrailSignature {
	return TrailSignature{
		GapPct:       s.TrailingGapPct,
		StartNoDCA:   s.PMStartPctNoDCA,
		StartWithDCA: s.PMStartPctWithDCA,
	}
}

// HardLevel returns the loss threshold for a stage; the last level repeats.
func (s Settings) HardLevel(stage int) float64 {
	if len(s.DCALevels) == 0 {
		return DefaultSettings().DCALevels[0]
	}
	if stage < 0 {
		stage = 0
	}
	if stage >= len(s.DCALevels) {
		return s.DCALevels[len(s.DCALevels)-1]
	}
	return s.DCALevels[stage]
}

// SignalStages is how many DCA stages may also fire on the external signal.
func (s Settings) SignalStages() int {
	n := MaxStartLevel - s.TradeStartLevel
	if n < 0 {
		return 0
	}
	return n
}

func (s Settings) PMStartPct(stage int) float64 {
	if stage == 0 {
		return s.PMStartPctNoDCA
	}
	return s.PMStartPctWithDCA
}

func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.DCACooldownMinutes) * time.Minute
}

// parseSettings applies per-field fallbacks and clamps to a raw key/value map.
func parseSettings(raw map[string]any, prev Settings) Settings {
	out := prev

	if coins, ok := raw["coins"].([]any); ok && len(coins) > 0 {
		var parsed []string
		for _, c := range coins {
			sym := strings.ToUpper(strings.TrimSpace(cast.ToString(c)))
			if sym != "" {
				parsed = append(parsed, sym)
			}
		}
		if len(parsed) > 0 {
			out.Coins = parsed
		}
	}

	if dir, ok := raw["main_neural_dir"].(string); ok {
		out.MainNeuralDir = strings.TrimSpace(dir)
	} else if _, present := raw["main_neural_dir"]; present {
		out.MainNeuralDir = ""
	}

	if v, ok := raw["trade_start_level"]; ok {
		if f, err := toFloat(v); err == nil {
			out.TradeStartLevel = int(f)
		}
	}
	out.TradeStartLevel = clampInt(out.TradeStartLevel, MinStartLevel, MaxStartLevel)

	out.StartAllocationPct = floatField(raw, "start_allocation_pct", out.StartAllocationPct)
	out.DCAMultiplier = floatField(raw, "dca_multiplier", out.DCAMultiplier)
	out.PMStartPctNoDCA = floatField(raw, "pm_start_pct_no_dca", out.PMStartPctNoDCA)
	out.PMStartPctWithDCA = floatField(raw, "pm_start_pct_with_dca", out.PMStartPctWithDCA)
	out.TrailingGapPct = floatField(raw, "trailing_gap_pct", out.TrailingGapPct)

	if v, ok := raw["max_dca_buys_per_24h"]; ok {
		if f, err := toFloat(v); err == nil {
			out.MaxDCABuysPerWindow = int(f)
		}
	}
	if out.MaxDCABuysPerWindow < 0 {
		out.MaxDCABuysPerWindow = 0
	}

	if v, ok := raw["dca_cooldown_minutes"]; ok {
		if f, err := toFloat(v); err == nil {
			out.DCACooldownMinutes = int(f)
		}
	}
	if out.DCACooldownMinutes < 0 {
		out.DCACooldownMinutes = 0
	}

	if levels, ok := raw["dca_levels"].([]any); ok && len(levels) > 0 {
		var parsed []float64
		for _, l := range levels {
			if f, err := toFloat(l); err == nil {
				parsed = append(parsed, f)
			}
		}
		if len(parsed) > 0 {
			out.DCALevels = parsed
		}
	}
	if len(out.DCALevels) == 0 {
		out.DCALevels = DefaultSettings().DCALevels
	}
	if len(out.Coins) == 0 {
		out.Coins = DefaultSettings().Coins
	}

	return out
}

func floatField(raw map[string]any, key string, fallback float64) float64 {
	v, ok := raw[key]
	if !ok {
		return nonNegative(fallback)
	}
	f, err := toFloat(v)
	if err != nil {
		return nonNegative(fallback)
	}
	return nonNegative(f)
}

// toFloat accepts numbers and numeric strings with an optional percent sign.
func toFloat(v any) (float64, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
