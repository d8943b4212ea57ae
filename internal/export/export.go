// Package export stores downloaded files such as earnings statements.
package export

import (
	"context"
	"fmt"

	"github.com/pitabwire/opsdesk/internal/config"
)

// Sink stores a named file and returns its location.
type Sink interface {
	Name() string
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Open builds the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ExportConfig) (Sink, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileSink(cfg.Dir), nil
	case "s3":
		s, err := NewS3SinkFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("export: unknown driver %q", cfg.Driver)
	}
}
