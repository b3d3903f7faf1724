package upstream

import (
	"time"

	"github.com/pkg/errors"

	"github.com/pulsedesk/pulsedesk/internal/profile"
)

// Config represents the workspace API client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Rate is the per-account request budget in requests per second.
	Rate  float64
	Burst int
}

// NewConfigFromProfile creates an upstream config from the profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		BaseURL: p.UpstreamBaseURL,
		Token:   p.UpstreamToken,
		Timeout: p.UpstreamTimeout,
		Rate:    p.UpstreamRate,
		Burst:   int(p.UpstreamRate) * 2,
	}
}

// Validate checks the config and fills defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("upstream base URL is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Rate <= 0 {
		c.Rate = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	return nil
}
