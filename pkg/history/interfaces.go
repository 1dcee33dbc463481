package history

import (
	"context"
	"fmt"

	"github.com/sifary/whatstrax/pkg/models"
)

// Sink is the bounded append target for classified presence samples.
// Implementations bound retained history per target by dropping the oldest
// entries beyond a fixed cap.
type Sink interface {
	Append(ctx context.Context, target string, sample *models.PresenceSample) error
	Points(ctx context.Context, target string, limit int) ([]models.PresenceSample, error)
	Close() error
}

// Config selects and sizes the history backend.
type Config struct {
	Backend      string `json:"backend"` // "memory" or "sqlite"
	Path         string `json:"path,omitempty"`
	MaxPerTarget int    `json:"max_per_target"`
	MaxTargets   int    `json:"max_targets"`
	QueueSize    int    `json:"queue_size"`
}

const (
	defaultMaxPerTarget = 1000
	defaultMaxTargets   = 10000
	defaultQueueSize    = 256
)

// Validate applies defaults.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = "memory"
	}

	if c.MaxPerTarget <= 0 {
		c.MaxPerTarget = defaultMaxPerTarget
	}

	if c.MaxTargets <= 0 {
		c.MaxTargets = defaultMaxTargets
	}

	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}

	return nil
}

// New creates the sink selected by cfg.Backend.
func New(cfg *Config) (Sink, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg), nil
	case "sqlite":
		return NewSqliteStore(cfg)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
