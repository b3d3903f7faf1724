package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the sync server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Version is the current version of server
	Version string

	// Sync configuration
	SyncTTL            time.Duration // PULSEDESK_SYNC_TTL (default: 5m)
	PreloadConcurrency int64         // PULSEDESK_SYNC_PRELOAD_CONCURRENCY (default: 8)

	// Upstream workspace API configuration
	UpstreamBaseURL string        // PULSEDESK_UPSTREAM_BASE_URL
	UpstreamToken   string        // PULSEDESK_UPSTREAM_TOKEN
	UpstreamTimeout time.Duration // PULSEDESK_UPSTREAM_TIMEOUT (default: 15s)
	UpstreamRate    float64       // PULSEDESK_UPSTREAM_RATE (requests/sec per account, default: 5)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// FromEnv loads configuration from PULSEDESK_* environment variables.
// Values already set on the profile are only replaced when the
// corresponding variable is non-empty.
func (p *Profile) FromEnv() {
	if v := os.Getenv("PULSEDESK_MODE"); v != "" {
		p.Mode = v
	}
	if v := os.Getenv("PULSEDESK_ADDR"); v != "" {
		p.Addr = v
	}
	if v := os.Getenv("PULSEDESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			p.Port = port
		}
	}
	if v := os.Getenv("PULSEDESK_SYNC_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			p.SyncTTL = ttl
		}
	}
	if v := os.Getenv("PULSEDESK_SYNC_PRELOAD_CONCURRENCY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.PreloadConcurrency = n
		}
	}
	if v := os.Getenv("PULSEDESK_UPSTREAM_BASE_URL"); v != "" {
		p.UpstreamBaseURL = v
	}
	if v := os.Getenv("PULSEDESK_UPSTREAM_TOKEN"); v != "" {
		p.UpstreamToken = v
	}
	if v := os.Getenv("PULSEDESK_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			p.UpstreamTimeout = d
		}
	}
	if v := os.Getenv("PULSEDESK_UPSTREAM_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			p.UpstreamRate = rate
		}
	}
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	if p.SyncTTL <= 0 {
		p.SyncTTL = 5 * time.Minute
	}
	if p.PreloadConcurrency <= 0 {
		p.PreloadConcurrency = 8
	}
	if p.UpstreamTimeout <= 0 {
		p.UpstreamTimeout = 15 * time.Second
	}
	if p.UpstreamRate <= 0 {
		p.UpstreamRate = 5
	}

	if p.UpstreamBaseURL == "" {
		if p.Mode == "prod" {
			return errors.New("upstream base URL is required in prod mode")
		}
		p.UpstreamBaseURL = "http://localhost:9080"
	}

	return nil
}
