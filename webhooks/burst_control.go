package webhooks

import (
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
	BurstModeDebounce BurstMode = "debounce"
)

const (
	defaultBurstWindow     = 30 * time.Second
	defaultBurstMaxEntries = 4096
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

type BurstController interface {
	Allow(key string) BurstDecision
}

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	Now        func() time.Time
}

// DefaultBurstController lets the first notification per key through and
// suppresses repeats inside the window. Coalesce measures the window from the
// last allowed notification, debounce from the last one seen.
type DefaultBurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	now        func() time.Time
	seen       *xsync.MapOf[string, time.Time]
}

func NewBurstController(opts BurstOptions) *DefaultBurstController {
	c := &DefaultBurstController{
		mode:       ParseBurstMode(string(opts.Mode)),
		window:     opts.Window,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		seen:       xsync.NewMapOf[string, time.Time](),
	}
	if c.window <= 0 {
		c.window = defaultBurstWindow
	}
	if c.maxEntries <= 0 {
		c.maxEntries = defaultBurstMaxEntries
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *DefaultBurstController) Window() time.Duration {
	if c == nil {
		return defaultBurstWindow
	}
	return c.window
}

func (c *DefaultBurstController) Allow(key string) BurstDecision {
	key = strings.ToLower(strings.TrimSpace(key))
	if c == nil || c.mode == BurstModeNone || key == "" {
		return BurstDecision{Allow: true}
	}

	now := c.now().UTC()
	allowed := false
	c.seen.Compute(key, func(last time.Time, loaded bool) (time.Time, bool) {
		if !loaded || now.Sub(last) >= c.window {
			allowed = true
			return now, false
		}
		if c.mode == BurstModeDebounce {
			return now, false
		}
		return last, false
	})
	if c.seen.Size() > c.maxEntries {
		c.evict(now)
	}
	if allowed {
		return BurstDecision{Allow: true}
	}

	suppressed := "coalesced"
	if c.mode == BurstModeDebounce {
		suppressed = "debounced"
	}
	return BurstDecision{Metadata: map[string]any{
		suppressed:        true,
		"burst_mode":      string(c.mode),
		"burst_key":       key,
		"burst_window_ms": c.window.Milliseconds(),
	}}
}

// evict drops keys whose window has closed.
func (c *DefaultBurstController) evict(now time.Time) {
	c.seen.Range(func(key string, last time.Time) bool {
		if now.Sub(last) >= c.window {
			c.seen.Delete(key)
		}
		return true
	})
}

// ParseBurstMode maps a configured mode name, defaulting to coalesce.
func ParseBurstMode(mode string) BurstMode {
	switch BurstMode(strings.ToLower(strings.TrimSpace(mode))) {
	case BurstModeNone:
		return BurstModeNone
	case BurstModeDebounce:
		return BurstModeDebounce
	default:
		return BurstModeCoalesce
	}
}

var _ BurstController = (*DefaultBurstController)(nil)
