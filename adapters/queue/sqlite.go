package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"scoregate/domain/submission"
	"scoregate/ports"
)

var queueSchema = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA busy_timeout=5000`,
	`CREATE TABLE IF NOT EXISTS queue_items (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		queue        TEXT    NOT NULL,
		payload      TEXT    NOT NULL,
		enqueued_at  INTEGER NOT NULL,
		leased_until INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_items_queue ON queue_items(queue, id)`,
}

// SQLiteOptions tunes lease and polling behaviour.
type SQLiteOptions struct {
	// Lease is how long a dequeued item stays invisible before it is
	// redelivered. It must exceed the longest item's processing time.
	Lease time.Duration
	// PollEvery bounds how long a blocked Dequeue waits before rechecking
	// the table for items written by another process.
	PollEvery time.Duration
}

func (o SQLiteOptions) withDefaults() SQLiteOptions {
	out := o
	if out.Lease <= 0 {
		out.Lease = 2 * time.Hour
	}
	if out.PollEvery <= 0 {
		out.PollEvery = 2 * time.Second
	}
	return out
}

// SQLiteBroker owns the database file shared by every named queue.
type SQLiteBroker struct {
	db   *sqlx.DB
	opts SQLiteOptions

	mu     sync.Mutex
	queues map[string]*SQLiteQueue
}

// OpenSQLite opens (creating if needed) the queue database at path.
func OpenSQLite(ctx context.Context, path string, opts SQLiteOptions) (*SQLiteBroker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create queue dir: %w", err)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	// a single connection serializes claims without SQLITE_BUSY retries
	db.SetMaxOpenConns(1)
	for _, stmt := range queueSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create queue schema: %w", err)
		}
	}
	return &SQLiteBroker{db: db, opts: opts.withDefaults(), queues: make(map[string]*SQLiteQueue)}, nil
}

// Queue returns the named queue, creating its handle on first use.
func (b *SQLiteBroker) Queue(name string) *SQLiteQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q
	}
	q := &SQLiteQueue{name: name, db: b.db, opts: b.opts, notify: make(chan struct{}, 1)}
	b.queues[name] = q
	return q
}

// Close closes the database.
func (b *SQLiteBroker) Close() error {
	return b.db.Close()
}

// SQLiteQueue is one named FIFO inside a SQLiteBroker database.
type SQLiteQueue struct {
	name   string
	db     *sqlx.DB
	opts   SQLiteOptions
	notify chan struct{}
}

var _ ports.Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Name() string { return q.name }

func (q *SQLiteQueue) Enqueue(ctx context.Context, item submission.QueueItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode queue item: %w", err)
	}
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO queue_items (queue, payload, enqueued_at) VALUES (?, ?, ?)`,
		q.name, string(payload), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to enqueue to %s: %w", q.name, err)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (ports.Delivery, error) {
	ticker := time.NewTicker(q.opts.PollEvery)
	defer ticker.Stop()
	for {
		d, ok, err := q.claim(ctx)
		if err != nil {
			return ports.Delivery{}, err
		}
		if ok {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return ports.Delivery{}, ctx.Err()
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// claim leases the oldest visible item, if any.
func (q *SQLiteQueue) claim(ctx context.Context) (ports.Delivery, bool, error) {
	now := time.Now()
	lease := now.Add(q.opts.Lease).UnixNano()

	var row struct {
		ID      int64  `db:"id"`
		Payload string `db:"payload"`
	}
	err := q.db.QueryRowxContext(ctx, `
		UPDATE queue_items SET leased_until = ?
		WHERE id = (
			SELECT id FROM queue_items
			WHERE queue = ? AND leased_until < ?
			ORDER BY id LIMIT 1
		)
		RETURNING id, payload`,
		lease, q.name, now.UnixNano(),
	).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Delivery{}, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ports.Delivery{}, false, ctx.Err()
		}
		return ports.Delivery{}, false, fmt.Errorf("failed to claim from %s: %w", q.name, err)
	}

	var item submission.QueueItem
	if err := json.Unmarshal([]byte(row.Payload), &item); err != nil {
		// an undecodable payload would be redelivered forever
		if _, derr := q.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, row.ID); derr != nil {
			return ports.Delivery{}, false, fmt.Errorf("failed to drop bad payload %d: %w", row.ID, derr)
		}
		return ports.Delivery{}, false, fmt.Errorf("dropped undecodable item %d from %s: %w", row.ID, q.name, err)
	}

	id := row.ID
	return ports.Delivery{Item: item, Ack: func(ctx context.Context) error {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ? AND leased_until = ?`, id, lease); err != nil {
			return fmt.Errorf("failed to ack item %d on %s: %w", id, q.name, err)
		}
		return nil
	}}, true, nil
}

// Len returns the number of items in the queue, leased or not.
func (q *SQLiteQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM queue_items WHERE queue = ?`, q.name); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.name, err)
	}
	return n, nil
}
