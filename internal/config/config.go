// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server settings. Every field is read from a
// TIMEGATE_* environment variable; see the env tags for names and defaults.
type Config struct {
	DatabaseURL string `env:"TIMEGATE_DATABASE_URL" envDefault:"sqlite://timegate.db"`
	GRPCAddr    string `env:"TIMEGATE_GRPC_ADDR" envDefault:":9090"`
	HTTPAddr    string `env:"TIMEGATE_HTTP_ADDR" envDefault:":8080"`
	NATSURL     string `env:"TIMEGATE_NATS_URL"`   // empty = no events
	AuthToken   string `env:"TIMEGATE_AUTH_TOKEN"` // empty = auth disabled

	// Policy source. The S3 bucket takes precedence over the file when set.
	PolicyFile         string        `env:"TIMEGATE_POLICY_FILE" envDefault:"timegate.toml"`
	PolicyS3Bucket     string        `env:"TIMEGATE_POLICY_S3_BUCKET"`
	PolicyS3Key        string        `env:"TIMEGATE_POLICY_S3_KEY" envDefault:"timegate/timegate.toml"`
	PolicyS3Region     string        `env:"TIMEGATE_POLICY_S3_REGION" envDefault:"us-east-1"`
	PolicyS3Endpoint   string        `env:"TIMEGATE_POLICY_S3_ENDPOINT"`                    // custom endpoint for MinIO
	PolicyPollInterval time.Duration `env:"TIMEGATE_POLICY_POLL_INTERVAL" envDefault:"30s"` // 0 = disabled

	TickInterval  time.Duration `env:"TIMEGATE_TICK_INTERVAL" envDefault:"60s"`
	PresenceStale time.Duration `env:"TIMEGATE_PRESENCE_STALE" envDefault:"15m"`

	// Audit log archive. Runs when an interval and at least one
	// destination are set.
	ArchiveInterval   time.Duration `env:"TIMEGATE_ARCHIVE_INTERVAL"` // 0 = disabled
	ArchiveWindow     time.Duration `env:"TIMEGATE_ARCHIVE_WINDOW" envDefault:"168h"`
	ArchiveS3Bucket   string        `env:"TIMEGATE_ARCHIVE_S3_BUCKET"`
	ArchiveS3Key      string        `env:"TIMEGATE_ARCHIVE_S3_KEY" envDefault:"timegate/audit.jsonl"`
	ArchiveS3Region   string        `env:"TIMEGATE_ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	ArchiveS3Endpoint string        `env:"TIMEGATE_ARCHIVE_S3_ENDPOINT"`
	ArchiveGitRepo    string        `env:"TIMEGATE_ARCHIVE_GIT_REPO"` // path to a local clone
	ArchiveGitFile    string        `env:"TIMEGATE_ARCHIVE_GIT_FILE" envDefault:"audit.jsonl"`
	ArchiveGitBranch  string        `env:"TIMEGATE_ARCHIVE_GIT_BRANCH" envDefault:"main"`

	OTELEndpoint string `env:"TIMEGATE_OTEL_ENDPOINT"` // empty = tracing disabled
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("TIMEGATE_DATABASE_URL must not be empty"))
	}
	if c.PolicyFile == "" && c.PolicyS3Bucket == "" {
		errs = append(errs, errors.New("one of TIMEGATE_POLICY_FILE or TIMEGATE_POLICY_S3_BUCKET is required"))
	}
	if c.PolicyS3Bucket != "" && c.PolicyS3Key == "" {
		errs = append(errs, errors.New("TIMEGATE_POLICY_S3_KEY is required with TIMEGATE_POLICY_S3_BUCKET"))
	}
	if c.PolicyPollInterval < 0 {
		errs = append(errs, errors.New("TIMEGATE_POLICY_POLL_INTERVAL must not be negative"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("TIMEGATE_TICK_INTERVAL must be positive"))
	}
	if c.PresenceStale <= 0 {
		errs = append(errs, errors.New("TIMEGATE_PRESENCE_STALE must be positive"))
	}
	if c.ArchiveInterval < 0 {
		errs = append(errs, errors.New("TIMEGATE_ARCHIVE_INTERVAL must not be negative"))
	}
	if c.ArchiveInterval > 0 && c.ArchiveS3Bucket == "" && c.ArchiveGitRepo == "" {
		errs = append(errs, errors.New("TIMEGATE_ARCHIVE_INTERVAL needs TIMEGATE_ARCHIVE_S3_BUCKET or TIMEGATE_ARCHIVE_GIT_REPO"))
	}
	if c.ArchiveWindow < 0 {
		errs = append(errs, errors.New("TIMEGATE_ARCHIVE_WINDOW must not be negative"))
	}
	return errors.Join(errs...)
}

// PolicyFromS3 reports whether the policy is read from a bucket.
func (c *Config) PolicyFromS3() bool {
	return c.PolicyS3Bucket != ""
}

// ArchiveEnabled reports whether the audit log is archived.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveInterval > 0
}
