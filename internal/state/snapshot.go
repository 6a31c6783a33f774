package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Snapshot captures the price store at a point in time.
type Snapshot struct {
	Timestamp int64   `json:"timestamp"`
	Entries   []Entry `json:"entries"`
}

// Snapshot builds a snapshot from current prices.
func (p *Prices) Snapshot() Snapshot {
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Entries:   p.Entries(),
	}
}

// Restore seeds the store from a snapshot. Symbols already present are kept.
func (p *Prices) Restore(snapshot Snapshot) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	restored := 0
	for _, e := range snapshot.Entries {
		if e.Symbol == "" || e.Price <= 0 || !e.Class.IsAvailable() {
			continue
		}
		if _, ok := p.entries[e.Symbol]; ok {
			continue
		}
		p.entries[e.Symbol] = e
		restored++
	}
	return restored
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir")
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "unmarshal snapshot")
	}
	return snap, nil
}
