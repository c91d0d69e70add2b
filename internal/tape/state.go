// Package tape persists the simulated market: the resumable market state,
// the append-only bar log (CSV) and the append-only news log (JSONL).
package tape

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/sim"
)

var (
	ErrStateNotFound = errors.New("tape: market state not found")
	ErrCorruptState  = errors.New("tape: corrupt market state")
)

// StateFile is the JSON file holding the market state between steps.
type StateFile struct {
	Path string
}

// Load reads the state. A missing file yields ErrStateNotFound; unreadable
// or structurally broken content yields ErrCorruptState and is never
// replaced silently.
func (f StateFile) Load() (sim.State, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return sim.State{}, ErrStateNotFound
	}
	if err != nil {
		return sim.State{}, fmt.Errorf("read %s: %w", f.Path, err)
	}
	var st sim.State
	if err := json.Unmarshal(data, &st); err != nil {
		return sim.State{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, f.Path, err)
	}
	if len(st.Universe) == 0 || len(st.RNGState) == 0 || st.Date.IsZero() || !st.Regime.Valid() {
		return sim.State{}, fmt.Errorf("%w: %s: missing universe, generator, date or regime", ErrCorruptState, f.Path)
	}
	return st, nil
}

// Save atomically replaces the state file.
func (f StateFile) Save(st sim.State) error {
	if err := fsutil.WriteJSON(f.Path, st); err != nil {
		return fmt.Errorf("save market state: %w", err)
	}
	return nil
}

// LoadOrCreate loads the state, or builds one with create and persists it
// immediately when none exists yet. created reports which happened.
func (f StateFile) LoadOrCreate(create func() (sim.State, error)) (st sim.State, created bool, err error) {
	st, err = f.Load()
	if err == nil {
		return st, false, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return sim.State{}, false, err
	}
	st, err = create()
	if err != nil {
		return sim.State{}, false, fmt.Errorf("create market state: %w", err)
	}
	if err := f.Save(st); err != nil {
		return sim.State{}, false, err
	}
	return st, true, nil
}
