// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	f.logger.Info("Creating Snowflake connector")

	connector, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return connector, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// Connectors holds every connection a command needs. Fields are nil when not
// configured.
type Connectors struct {
	Source   DatabaseConnector
	Postgres *PostgresConnector
}

// Close closes every open connector
func (c *Connectors) Close() {
	if c.Source != nil && c.Source != DatabaseConnector(c.Postgres) {
		c.Source.Close()
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
}

// CreateAllConnectors opens the source connector and, when any component
// needs it, the PostgreSQL connector. A Postgres source is shared.
func (f *ConnectorFactory) CreateAllConnectors(ctx context.Context) (*Connectors, error) {
	conns := &Connectors{}

	if f.cfg.NeedsPostgres() {
		pgConn, err := f.CreatePostgresConnector(ctx)
		if err != nil {
			return nil, err
		}
		conns.Postgres = pgConn
	}

	switch f.cfg.Data.Source {
	case config.SourcePostgres:
		conns.Source = conns.Postgres
	case config.SourceSnowflake:
		snowConn, err := f.CreateSnowflakeConnector(ctx)
		if err != nil {
			conns.Close() // Clean up the PostgreSQL connection if Snowflake fails
			return nil, err
		}
		conns.Source = snowConn
	}

	return conns, nil
}
