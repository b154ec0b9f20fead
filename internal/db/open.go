package db

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/vecstash/internal/config"
)

// Open opens the store selected by cfg.Backend. maxConns bounds the
// Postgres pool and is ignored by veclite.
func Open(ctx context.Context, cfg config.DatabaseConfig, dimensions int, maxConns int32) (Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres, "":
		return OpenPostgres(ctx, cfg.DSN(), dimensions, maxConns)
	case config.BackendVecLite:
		return OpenVecLite(cfg.DataDir, dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown database backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}
