package logger

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const insertFetchLog = `INSERT INTO fetch_log
	(id, provider, endpoint, outcome, error_type, latency_ms, attempts, from_cache, created_at)`

// ClickHouseSink persists audit batches to a ClickHouse table. It is enabled
// only when a DSN is configured; the service runs fine without it.
type ClickHouseSink struct {
	conn driver.Conn
}

func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}
	return &ClickHouseSink{conn: conn}, nil
}

func (s *ClickHouseSink) Write(ctx context.Context, entries []FetchLog) error {
	batch, err := s.conn.PrepareBatch(ctx, insertFetchLog)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}
	for _, e := range entries {
		err := batch.Append(
			e.ID,
			e.Provider,
			e.Endpoint,
			e.Outcome,
			e.ErrorType,
			e.LatencyMs,
			e.Attempts,
			e.FromCache,
			normalizeTime(e.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("clickhouse: append: %w", err)
		}
	}
	return batch.Send()
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
