package config

import (
	"bytes"
	"crypto/sha256"
	"dcatrader/internal/logger"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var ErrNoSettingsFile = errors.New("файл настроек не найден")

// SettingsStore re-reads the settings file when its content changes and keeps the last good snapshot.
type SettingsStore struct {
	path string
	log  *logger.Logger

	mu      sync.Mutex
	sum     [sha256.Size]byte
	loaded  bool
	current Settings
}

func NewSettingsStore(path string, log *logger.Logger) *SettingsStore {
	return &SettingsStore{
		path:    path,
		log:     log,
		current: DefaultSettings(),
	}
}

// Snapshot returns the current settings and whether they changed since the previous call.
func (s *SettingsStore) Snapshot() (Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.reload()
	if err != nil && !errors.Is(err, ErrNoSettingsFile) {
		s.logEntry().WithError(err).Warn("Не удалось перечитать настройки, используются прежние.")
	}
	return cloneSettings(s.current), changed
}

// Current returns the last loaded settings without touching the file or the change flag.
func (s *SettingsStore) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSettings(s.current)
}

func (s *SettingsStore) reload() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, ErrNoSettingsFile
		}
		return false, fmt.Errorf("Не удалось прочитать %s: %w", s.path, err)
	}

	sum := sha256.Sum256(data)
	if s.loaded && sum == s.sum {
		return false, nil
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("Не удалось разобрать %s: %w", s.path, err)
	}

	next := parseSettings(v.AllSettings(), s.current)
	s.sum = sum
	s.loaded = true
	s.current = next

	s.logEntry().WithFields(logrus.Fields{
		"coins":       next.Coins,
		"start_level": next.TradeStartLevel,
		"dca_levels":  next.DCALevels,
		"max_dca":     next.MaxDCABuysPerWindow,
		"cooldown_m":  next.DCACooldownMinutes,
		"trail_gap":   next.TrailingGapPct,
	}).Info("Настройки загружены.")
	return true, nil
}

func (s *SettingsStore) logEntry() *logrus.Entry {
	return s.log.WithComponent("settings").WithField("path", s.path)
}

func cloneSettings(in Settings) Settings {
	out := in
	out.Coins = append([]string(nil), in.Coins...)
	out.DCALevels = append([]float64(nil), in.DCALevels...)
	return out
}
