package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
)

const ManualCommandFileName = "manual_command.json"

type ManualAction string

const (
	ManualBuy  ManualAction = "buy"
	ManualSell ManualAction = "sell"
)

type ManualCommand struct {
	Action    ManualAction
	Symbol    string
	AmountUSD float64
}

// ManualInbox is a one-slot mailbox the dashboard drops buy/sell requests into.
type ManualInbox struct {
	path string
}

func NewManualInbox(dir string) *ManualInbox {
	return &ManualInbox{path: filepath.Join(dir, ManualCommandFileName)}
}

func (m *ManualInbox) Path() string {
	return m.path
}

// Take reads and deletes the pending command. The file is removed before the
// command is returned so a crash never replays it. ok is false when there is none.
func (m *ManualInbox) Take() (ManualCommand, bool, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ManualCommand{}, false, nil
		}
		return ManualCommand{}, false, err
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ManualCommand{}, false, fmt.Errorf("Не удалось удалить %s: %w", m.path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ManualCommand{}, false, fmt.Errorf("Некорректная ручная команда: %w", err)
	}

	cmd := ManualCommand{
		Action: ManualAction(strings.ToLower(strings.TrimSpace(cast.ToString(raw["action"])))),
		Symbol: strings.ToUpper(strings.TrimSpace(cast.ToString(raw["symbol"]))),
	}
	cmd.AmountUSD, _ = cast.ToFloat64E(raw["amount_usd"])
	if cmd.Symbol == "" {
		return ManualCommand{}, false, nil
	}
	return cmd, true, nil
}
