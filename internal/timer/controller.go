// Package timer drives the countdown of a test session and raises expiry
// events.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/model"
)

// DefaultQuestionSeconds is used when a per-question timer is forced
// without a duration.
const DefaultQuestionSeconds = 90

// Expiry is raised once when the countdown reaches zero.
type Expiry struct {
	Index int
	Mode  model.TimerMode
}

// State is a point-in-time view of the countdown.
type State struct {
	Mode      model.TimerMode `json:"mode"`
	Index     int             `json:"index"`
	Remaining int             `json:"remaining"`
	Display   string          `json:"display"`
	Expired   bool            `json:"expired"`
}

// Controller is a single countdown. Tick is the only way time advances;
// Run calls it from a ticker.
type Controller struct {
	mu        sync.Mutex
	mode      model.TimerMode
	duration  int
	remaining int
	index     int
	fired     bool
	stopped   bool

	onExpire func(Expiry)
	onTick   func(State)
	inFlight func(index int) bool
	log      zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// OnExpire registers the expiry handler.
func OnExpire(f func(Expiry)) Option {
	return func(c *Controller) { c.onExpire = f }
}

// OnTick registers a listener called after every effective tick.
func OnTick(f func(State)) Option {
	return func(c *Controller) { c.onTick = f }
}

// InFlight registers the probe used to pause the countdown while a
// submission for the current question has not resolved.
func InFlight(f func(index int) bool) Option {
	return func(c *Controller) { c.inFlight = f }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log.With().Str("component", "timer").Logger() }
}

// New creates a controller positioned on question 0.
func New(mode model.TimerMode, durationSeconds int, opts ...Option) *Controller {
	c := &Controller{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.configureLocked(mode, durationSeconds)
	return c
}

// Configure switches the timer mode and restarts the countdown for the
// current question.
func (c *Controller) Configure(mode model.TimerMode, durationSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configureLocked(mode, durationSeconds)
}

func (c *Controller) configureLocked(mode model.TimerMode, durationSeconds int) {
	if mode == "" {
		mode = model.TimerNone
	}
	if mode != model.TimerNone && durationSeconds <= 0 {
		durationSeconds = DefaultQuestionSeconds
	}
	c.mode = mode
	c.duration = durationSeconds
	c.remaining = durationSeconds
	c.fired = false
}

// Enter moves the countdown to another question. Under the per-question
// mode the remaining time resets to the full duration.
func (c *Controller) Enter(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index == c.index {
		return
	}
	c.index = index
	if c.mode == model.TimerPerQuestion {
		c.remaining = c.duration
		c.fired = false
	}
}

// Stop disables the countdown for good.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// Tick advances the countdown by one second and reports whether it raised
// an expiry. Once at zero it holds without raising again until the question
// changes. Ticks are ignored while the current question has a submission
// in flight.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	if c.stopped || c.mode == model.TimerNone || c.remaining <= 0 {
		c.mu.Unlock()
		return false
	}
	index := c.index
	inFlight := c.inFlight
	c.mu.Unlock()

	if inFlight != nil && inFlight(index) {
		return false
	}

	c.mu.Lock()
	if c.stopped || c.index != index || c.remaining <= 0 {
		c.mu.Unlock()
		return false
	}
	c.remaining--
	var expiry *Expiry
	if c.remaining == 0 && !c.fired {
		c.fired = true
		expiry = &Expiry{Index: c.index, Mode: c.mode}
	}
	state := c.stateLocked()
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(state)
	}
	if expiry == nil {
		return false
	}
	c.log.Debug().Int("index", expiry.Index).Str("mode", string(expiry.Mode)).Msg("Timer expired")
	if c.onExpire != nil {
		c.onExpire(*expiry)
	}
	return true
}

// State returns the current countdown view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{
		Mode:      c.mode,
		Index:     c.index,
		Remaining: c.remaining,
		Display:   Format(c.remaining),
		Expired:   c.mode != model.TimerNone && c.remaining == 0,
	}
}

// Run ticks every interval until ctx is canceled or the controller stops.
// Call in a goroutine.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
			c.mu.Lock()
			stopped := c.stopped
			c.mu.Unlock()
			if stopped {
				return
			}
		}
	}
}

// Format renders seconds as MM:SS.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
