// Package logger implements a non-blocking, batched fetch-audit logger.
//
// Audit entries are written to an internal buffered channel and flushed in
// batches by a background goroutine — so logging never blocks the fetch hot
// path. If the channel fills up (> 10 000 entries), new entries are dropped
// and counted in DroppedLogs.
//
// Batches go to a Sink. The default sink writes structured slog records; an
// optional ClickHouse sink persists batches for offline analytics.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

// FetchLog is one audited data fetch.
type FetchLog struct {
	ID        uuid.UUID
	Provider  string
	Endpoint  string
	Outcome   string // success, failure, cache_hit, rejected, read_only
	ErrorType string
	LatencyMs uint32
	Attempts  uint8
	FromCache bool
	CreatedAt time.Time
}

// Sink receives flushed batches. Implementations must tolerate being called
// from a single background goroutine.
type Sink interface {
	Write(ctx context.Context, batch []FetchLog) error
}

type slogSink struct {
	log *slog.Logger
}

func (s *slogSink) Write(ctx context.Context, batch []FetchLog) error {
	for _, e := range batch {
		s.log.InfoContext(ctx, "fetch",
			slog.String("id", e.ID.String()),
			slog.String("provider", e.Provider),
			slog.String("endpoint", e.Endpoint),
			slog.String("outcome", e.Outcome),
			slog.String("error_type", e.ErrorType),
			slog.Uint64("latency_ms", uint64(e.LatencyMs)),
			slog.Uint64("attempts", uint64(e.Attempts)),
			slog.Bool("from_cache", e.FromCache),
			slog.Time("created_at", normalizeTime(e.CreatedAt)),
		)
	}
	return nil
}

type Logger struct {
	ch        chan FetchLog
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	droppedLogs int64

	baseCtx context.Context
	sink    Sink
	log     *slog.Logger
}

type Option func(*Logger)

// WithSink replaces the default slog sink.
func WithSink(s Sink) Option {
	return func(l *Logger) {
		if s != nil {
			l.sink = s
		}
	}
}

func New(ctx context.Context, slogger *slog.Logger, opts ...Option) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("logger: context must not be nil")
	}
	if slogger == nil {
		slogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	l := &Logger{
		ch:      make(chan FetchLog, channelBuffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
		sink:    &slogSink{log: slogger},
		log:     slogger,
	}
	for _, o := range opts {
		o(l)
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

func (l *Logger) Log(entry FetchLog) {
	select {
	case l.ch <- entry:
	default:
		atomic.AddInt64(&l.droppedLogs, 1)
	}
}

func (l *Logger) DroppedLogs() int64 {
	return atomic.LoadInt64(&l.droppedLogs)
}

func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]FetchLog, 0, batchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := l.sink.Write(ctx, batch); err != nil {
			l.log.WarnContext(ctx, "audit sink write failed",
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-l.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush(l.baseCtx)
			}

		case <-ticker.C:
			flush(l.baseCtx)

		case <-l.done:
			for {
				select {
				case entry := <-l.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush(l.baseCtx)
					}
				default:
					flush(l.baseCtx)
					return
				}
			}
		}
	}
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
