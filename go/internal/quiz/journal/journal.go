package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/quiz/metrics"
	"github.com/mcdev12/livequiz/go/internal/quiz/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_answer_journal (
    id          UUID PRIMARY KEY,
    question_id TEXT NOT NULL,
    label       TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
)`

const insertAnswer = `
INSERT INTO quiz_answer_journal (id, question_id, label, recorded_at)
VALUES ($1, $2, $3, $4)`

// DrainTimeout bounds how long Run keeps writing queued entries after its
// context is cancelled.
var DrainTimeout = 5 * time.Second

// DB is the subset of *pgxpool.Pool the journal writes through
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Entry is one accepted answer waiting to be written
type Entry struct {
	Question   session.Question
	Labels     []string
	RecordedAt time.Time
}

// Journal appends every accepted answer to Postgres. Writes happen on the Run
// goroutine so recording never blocks message handling. Nothing reads the
// journal back into the session.
type Journal struct {
	db      DB
	entries chan Entry
	clock   clockwork.Clock
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("database connected")
	return pool, nil
}

// New creates a journal holding up to buffer pending entries.
func New(db DB, buffer int, clock clockwork.Clock) *Journal {
	if buffer <= 0 {
		buffer = 1
	}
	return &Journal{
		db:      db,
		entries: make(chan Entry, buffer),
		clock:   clock,
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

// Record queues an answer for writing. When the queue is full the answer is
// dropped from the journal; the session tally is unaffected.
func (j *Journal) Record(question session.Question, labels []string) {
	entry := Entry{
		Question:   question,
		Labels:     append([]string(nil), labels...),
		RecordedAt: j.clock.Now().UTC(),
	}

	select {
	case j.entries <- entry:
		metrics.JournalRecords.WithLabelValues(metrics.StatusQueued).Inc()
	default:
		metrics.JournalRecords.WithLabelValues(metrics.ResultDropped).Inc()
		log.Warn().
			Stringer("question", question).
			Msg("answer journal queue full, dropping entry")
	}
}

// Run writes queued entries until ctx is done, then flushes what is still
// queued within DrainTimeout.
func (j *Journal) Run(ctx context.Context) error {
	log.Info().Msg("answer journal started")

	for {
		if ctx.Err() != nil {
			j.drain(ctx)
			return nil
		}
		select {
		case <-ctx.Done():
			j.drain(ctx)
			return nil
		case entry := <-j.entries:
			j.write(ctx, entry)
		}
	}
}

func (j *Journal) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DrainTimeout)
	defer cancel()

	written := 0
	for drainCtx.Err() == nil {
		select {
		case entry := <-j.entries:
			j.write(drainCtx, entry)
			written++
		default:
			log.Info().Int("flushed", written).Msg("answer journal stopped")
			return
		}
	}
	log.Warn().
		Int("flushed", written).
		Int("pending", len(j.entries)).
		Msg("answer journal stopped before queue was flushed")
}

// write inserts one row per label. A failed row is logged and skipped.
func (j *Journal) write(ctx context.Context, entry Entry) {
	for _, label := range entry.Labels {
		_, err := j.db.Exec(ctx, insertAnswer, uuid.New(), entry.Question.String(), label, entry.RecordedAt)
		if err != nil {
			metrics.JournalRecords.WithLabelValues(metrics.StatusFailed).Inc()
			log.Error().
				Err(err).
				Stringer("question", entry.Question).
				Str("label", label).
				Msg("failed to write answer journal row")
			continue
		}
		metrics.JournalRecords.WithLabelValues(metrics.StatusWritten).Inc()
	}
}
