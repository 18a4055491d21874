// Package autosave debounces form edits into background saves with
// snapshot-based dirty tracking and rollback.
package autosave

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// State is the controller's lifecycle position. Transitions:
// Idle -> Dirty -> Validating -> Saving -> Saved, with Error reachable from
// Validating and Saving, and Dirty reachable again from anywhere an edit
// lands.
type State string

const (
	StateIdle       State = "idle"
	StateDirty      State = "dirty"
	StateValidating State = "validating"
	StateSaving     State = "saving"
	StateSaved      State = "saved"
	StateError      State = "error"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("autosave controller closed")

// Status is a point-in-time view of the controller for UI consumption.
type Status struct {
	State              State
	HasUnsavedChanges  bool
	LastSavedAt        time.Time
	LastError          error
	ValidationProblems []string
}

// Config configures a Controller. Save is required; everything else has a
// usable zero value.
type Config[T any] struct {
	// Save persists the value. Called off the caller's goroutine.
	Save func(ctx context.Context, value T) error

	// Validate, when set, runs before every save attempt. A non-empty
	// result blocks the save and surfaces as ValidationProblems.
	Validate func(value T) []string

	// Debounce is the quiet period after the last edit before a save
	// fires. Defaults to 2s.
	Debounce time.Duration

	// SaveTimeout bounds one save attempt. Defaults to 30s.
	SaveTimeout time.Duration

	// OnStatusChange, when set, is invoked after every status transition,
	// outside the controller's lock.
	OnStatusChange func(Status)

	Logger *slog.Logger
}

// Controller coalesces rapid edits into one save per quiet period. Edits
// arriving while a save is in flight land in a single pending slot; only the
// newest pending value survives, and it is saved once the in-flight attempt
// finishes.
type Controller[T any] struct {
	cfg Config[T]

	mu        sync.Mutex
	current   T
	snapshot  []byte // msgpack of the last successfully saved value
	state     State
	enabled   bool
	closed    bool
	timer     *time.Timer
	saving    bool
	pending   bool
	pendingV  T
	lastSave  time.Time
	lastErr   error
	problems  []string
	savedOnce bool
}

// New builds a controller seeded with initial as the clean baseline.
func New[T any](initial T, cfg Config[T]) (*Controller[T], error) {
	if cfg.Save == nil {
		return nil, errors.New("autosave: Save is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	snap, err := msgpack.Marshal(initial)
	if err != nil {
		return nil, err
	}
	return &Controller[T]{
		cfg:      cfg,
		current:  initial,
		snapshot: snap,
		state:    StateIdle,
		enabled:  true,
	}, nil
}

// Update records an edit. If the value matches the last saved snapshot the
// controller returns to clean; otherwise the debounce timer (re)starts.
func (c *Controller[T]) Update(value T) error {
	snap, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.current = value

	if bytes.Equal(snap, c.snapshot) {
		c.stopTimerLocked()
		c.pending = false
		if c.savedOnce {
			c.state = StateSaved
		} else {
			c.state = StateIdle
		}
		status := c.statusLocked()
		c.mu.Unlock()
		c.notify(status)
		return nil
	}

	if c.saving {
		// A save is in flight; park the newest value and reconcile after.
		c.pending = true
		c.pendingV = value
		status := c.statusLocked()
		c.mu.Unlock()
		c.notify(status)
		return nil
	}

	c.state = StateDirty
	c.lastErr = nil
	c.problems = nil
	if c.enabled {
		c.armTimerLocked()
	}
	status := c.statusLocked()
	c.mu.Unlock()
	c.notify(status)
	return nil
}

// ForceSave saves immediately, bypassing the debounce. When the call wins
// the in-flight slot it is synchronous and returns the attempt's result.
// When another save is already in flight the value is parked in the pending
// slot and ForceSave returns nil; the in-flight cycle persists it before
// settling.
func (c *Controller[T]) ForceSave(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopTimerLocked()
	value := c.current
	c.mu.Unlock()

	return c.save(ctx, value)
}

// Rollback discards unsaved edits and returns the last saved value. The
// second result is false when nothing has ever been saved or snapshotted.
func (c *Controller[T]) Rollback() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var restored T
	if err := msgpack.Unmarshal(c.snapshot, &restored); err != nil {
		var zero T
		return zero, false
	}
	c.current = restored
	c.pending = false
	c.stopTimerLocked()
	if c.savedOnce {
		c.state = StateSaved
	} else {
		c.state = StateIdle
	}
	c.lastErr = nil
	c.problems = nil
	return restored, true
}

// Status reports the controller's current state.
func (c *Controller[T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Value returns the current (possibly unsaved) value.
func (c *Controller[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetEnabled toggles automatic saving. Disabling cancels any armed timer;
// edits still accumulate and ForceSave still works. Re-enabling with dirty
// state re-arms the timer.
func (c *Controller[T]) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.stopTimerLocked()
		return
	}
	if c.state == StateDirty && !c.saving {
		c.armTimerLocked()
	}
}

// Close stops the controller. Pending edits are not flushed; call ForceSave
// first if they matter.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

func (c *Controller[T]) armTimerLocked() {
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.cfg.Debounce, c.timerFired)
}

func (c *Controller[T]) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller[T]) timerFired() {
	c.mu.Lock()
	if c.closed || !c.enabled {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	value := c.current
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SaveTimeout)
	defer cancel()
	if err := c.save(ctx, value); err != nil {
		c.cfg.Logger.Warn("autosave attempt failed", "error", err)
	}
}

// save runs save attempts for value until the pending slot is drained. The
// in-flight slot is checked and claimed under one lock acquisition; a caller
// that loses the claim parks its value and returns, and the owner picks the
// parked value up after its current attempt settles. Validation problems
// block an attempt; the form stays dirty until the input is fixed.
func (c *Controller[T]) save(ctx context.Context, value T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.saving {
		c.pending = true
		c.pendingV = value
		c.mu.Unlock()
		return nil
	}
	c.saving = true
	c.mu.Unlock()

	for {
		if c.cfg.Validate != nil {
			c.mu.Lock()
			c.state = StateValidating
			status := c.statusLocked()
			c.mu.Unlock()
			c.notify(status)

			if problems := c.cfg.Validate(value); len(problems) > 0 {
				c.mu.Lock()
				if c.pending {
					// A newer value arrived mid-validation; judge that one
					// instead of reporting problems for a superseded draft.
					value = c.pendingV
					c.pending = false
					c.mu.Unlock()
					continue
				}
				c.saving = false
				c.problems = problems
				c.state = StateError
				c.lastErr = errors.New(strings.Join(problems, "; "))
				status := c.statusLocked()
				c.mu.Unlock()
				c.notify(status)
				return nil
			}
		}

		c.mu.Lock()
		c.state = StateSaving
		c.problems = nil
		status := c.statusLocked()
		c.mu.Unlock()
		c.notify(status)

		err := c.cfg.Save(ctx, value)

		c.mu.Lock()
		if err != nil {
			c.saving = false
			c.state = StateError
			c.lastErr = err
			status = c.statusLocked()
			c.mu.Unlock()
			c.notify(status)
			return err
		}

		snap, marshalErr := msgpack.Marshal(value)
		if marshalErr == nil {
			c.snapshot = snap
		}
		c.savedOnce = true
		c.lastSave = time.Now().UTC()
		c.lastErr = nil

		if c.pending {
			value = c.pendingV
			c.pending = false
			c.state = StateDirty
			status = c.statusLocked()
			c.mu.Unlock()
			c.notify(status)
			continue
		}

		c.saving = false
		c.state = StateSaved
		status = c.statusLocked()
		c.mu.Unlock()
		c.notify(status)
		return nil
	}
}

func (c *Controller[T]) statusLocked() Status {
	dirty := c.state == StateDirty || c.state == StateSaving || c.state == StateError || c.pending
	return Status{
		State:              c.state,
		HasUnsavedChanges:  dirty,
		LastSavedAt:        c.lastSave,
		LastError:          c.lastErr,
		ValidationProblems: c.problems,
	}
}

func (c *Controller[T]) notify(status Status) {
	if c.cfg.OnStatusChange != nil {
		c.cfg.OnStatusChange(status)
	}
}
