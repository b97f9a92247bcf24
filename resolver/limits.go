package resolver

import "fmt"

const (
	// DefaultLimit is the window size used when the terms do not carry one.
	DefaultLimit = 10

	// DefaultMaxLimit is the largest window a collection serves.
	// This protects against resource exhaustion from unreasonably large requests.
	DefaultMaxLimit = 1000
)

// LimitConfig holds window size configuration.
// Use NewLimitConfig() to create a config with sensible defaults,
// then customize using the With* methods.
//
// Example:
//
//	limits := resolver.NewLimitConfig().WithMaxSize(500)
//	limit := limits.EffectiveLimit(terms.Limit)
type LimitConfig struct {
	// DefaultSize is the window size used when none is requested.
	DefaultSize int

	// MaxSize is the maximum allowed window size. Requests exceeding this
	// are capped to MaxSize (not rejected).
	MaxSize int
}

// NewLimitConfig creates a LimitConfig with defaults:
// - DefaultSize: 10
// - MaxSize: 1000
func NewLimitConfig() *LimitConfig {
	return &LimitConfig{
		DefaultSize: DefaultLimit,
		MaxSize:     DefaultMaxLimit,
	}
}

// WithDefaultSize sets the default window size and returns the config for chaining.
func (c *LimitConfig) WithDefaultSize(size int) *LimitConfig {
	if size > 0 {
		c.DefaultSize = size
	}
	return c
}

// WithMaxSize sets the maximum window size and returns the config for chaining.
func (c *LimitConfig) WithMaxSize(size int) *LimitConfig {
	if size > 0 {
		c.MaxSize = size
	}
	return c
}

// EffectiveLimit returns the window size to use, applying defaults and caps.
// - If requested is zero or negative, returns DefaultSize
// - If requested exceeds MaxSize, returns MaxSize
// - Otherwise returns requested
func (c *LimitConfig) EffectiveLimit(requested int) int {
	if c == nil {
		c = NewLimitConfig()
	}

	defaultSize := c.DefaultSize
	if defaultSize <= 0 {
		defaultSize = DefaultLimit
	}

	maxSize := c.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxLimit
	}

	if requested <= 0 {
		return min(defaultSize, maxSize)
	}

	return min(requested, maxSize)
}

// Validate returns a *LimitError if requested exceeds MaxSize.
// Unlike EffectiveLimit which caps silently, Validate is for explicit
// rejection of invalid requests.
func (c *LimitConfig) Validate(requested int) error {
	if c == nil {
		c = NewLimitConfig()
	}

	maxSize := c.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxLimit
	}

	if requested > maxSize {
		return &LimitError{Requested: requested, Maximum: maxSize}
	}

	return nil
}

// LimitError is returned when the requested window exceeds the maximum allowed.
type LimitError struct {
	Requested int
	Maximum   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("requested limit %d exceeds maximum allowed limit of %d",
		e.Requested, e.Maximum)
}
