package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// historySchema is the append-only history layout: one row per entry, keyed
// by (instance_id, seq). The primary key makes the optimistic append atomic:
// a raced writer hits a unique violation instead of extending the history.
const historySchema = `
CREATE TABLE IF NOT EXISTS orchestration_history (
	instance_id TEXT        NOT NULL,
	seq         INTEGER     NOT NULL,
	entry_type  TEXT        NOT NULL,
	entry       JSONB       NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (instance_id, seq)
)`

// PostgresStore is the durable HistoryStore. Instance ownership uses
// session-scoped advisory locks as the lease, so two replaying processes can
// never both believe they own an instance.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the store and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, historySchema); err != nil {
		return nil, fmt.Errorf("migrate orchestration history schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements HistoryStore.
func (s *PostgresStore) Append(ctx context.Context, instanceID string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO orchestration_history (instance_id, seq, entry_type, entry, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		instanceID, entry.Seq, string(entry.Type), payload, entry.RecordedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSequenceConflict
		}
		return fmt.Errorf("append history entry for instance %s: %w", instanceID, err)
	}
	return nil
}

// Load implements HistoryStore.
func (s *PostgresStore) Load(ctx context.Context, instanceID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry FROM orchestration_history WHERE instance_id = $1 ORDER BY seq`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history for instance %s: %w", instanceID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode history entry for instance %s: %w", instanceID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history for instance %s: %w", instanceID, err)
	}
	if len(entries) == 0 {
		return nil, ErrInstanceNotFound
	}
	return entries, nil
}

// ListIncomplete implements HistoryStore.
func (s *PostgresStore) ListIncomplete(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT instance_id
		   FROM orchestration_history
		  GROUP BY instance_id
		 HAVING COUNT(*) FILTER (WHERE entry_type = $1) = 0`,
		string(EntryCompletionPublished),
	)
	if err != nil {
		return nil, fmt.Errorf("list incomplete instances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AcquireLease implements HistoryStore. The advisory lock is held by a
// dedicated connection for the lifetime of the lease.
func (s *PostgresStore) AcquireLease(ctx context.Context, instanceID string) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for lease: %w", err)
	}

	key := leaseKey(instanceID)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire lease for instance %s: %w", instanceID, err)
	}
	if !locked {
		conn.Release()
		return nil, ErrLeaseHeld
	}

	release := func() {
		// Background context: the lease must be released even when the
		// owning run's context is already cancelled.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}
	return release, nil
}

func leaseKey(instanceID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(instanceID))
	return int64(h.Sum64())
}

var _ HistoryStore = (*PostgresStore)(nil)
