package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphsync/internal/logger"
)

type MemgraphDriver struct {
	Driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

type MemgraphOptions struct {
	URI      string
	Username string
	Password string
	Database string
	MaxPool  int
	Timeout  time.Duration
}

func NewMemgraphDriver(ctx context.Context, opts MemgraphOptions, log *logger.Logger) (*MemgraphDriver, error) {
	if log == nil {
		log = logger.Nop()
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""), func(cfg *neo4j.Config) {
		if opts.MaxPool > 0 {
			cfg.MaxConnectionPoolSize = opts.MaxPool
		}
		if opts.Timeout > 0 {
			cfg.SocketConnectTimeout = opts.Timeout
			cfg.ConnectionAcquisitionTimeout = opts.Timeout
		}
	})
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("memgraph connectivity: %w", err)
	}

	log.Info("Connected to Memgraph", "uri", opts.URI)
	return &MemgraphDriver{Driver: driver, database: opts.Database, log: log}, nil
}

func (d *MemgraphDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *MemgraphDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (d *MemgraphDriver) BuildIndices(ctx context.Context) error {
	for _, q := range IndexQueries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			// Memgraph rejects re-creating an existing index.
			d.log.Warn("Failed to create index", "query", q, "error", err)
		}
	}
	return nil
}
