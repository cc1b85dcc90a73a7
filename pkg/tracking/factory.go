// pkg/tracking/factory.go
package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/config"
)

// NewTracker builds the tracker selected in configuration. db is required
// for the postgres backend and ignored otherwise.
func NewTracker(ctx context.Context, cfg config.TrackingConfig, db *sql.DB, logger *zap.Logger) (Tracker, error) {
	switch cfg.Backend {
	case config.TrackingFile:
		return NewFileTracker(cfg.Dir, logger)
	case config.TrackingPostgres:
		if db == nil {
			return nil, errors.New("postgres tracking needs a database connection")
		}
		return NewPostgresTracker(ctx, db, "pgx", logger)
	default:
		return nil, fmt.Errorf("%w: unknown tracking backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}
