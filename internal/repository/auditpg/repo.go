// Package auditpg mirrors the usage audit log into Postgres for billing history.
package auditpg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/quotagate/internal/domain"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
)

// Schema creates the mirror table. Rows are inserted once and only
// released_at is ever filled in afterwards.
const Schema = `
CREATE TABLE IF NOT EXISTS consumption_records (
	correlation_id   TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL,
	resource         TEXT NOT NULL,
	amount           BIGINT NOT NULL,
	breakdown        JSONB NOT NULL,
	outcome          TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	plan_remaining   BIGINT NOT NULL,
	credit_remaining BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	released_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS consumption_records_account_created
	ON consumption_records (account_id, created_at);
`

// DB is the subset of pgxpool.Pool the mirror needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repo writes and queries mirrored records.
type Repo struct {
	db DB
}

// New creates a Postgres audit mirror.
func New(db DB) *Repo {
	return &Repo{db: db}
}

// EnsureSchema creates the table and index if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Record inserts rec. Re-inserting the same correlation id is a no-op.
func (r *Repo) Record(ctx context.Context, rec consumption.Record) error {
	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	query := `
		INSERT INTO consumption_records (
			correlation_id, account_id, resource, amount, breakdown,
			outcome, reason, plan_remaining, credit_remaining, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (correlation_id) DO NOTHING
	`
	_, err = r.db.Exec(ctx, query,
		rec.CorrelationID, rec.AccountID, string(rec.Resource), rec.Amount, breakdown,
		string(rec.Outcome), string(rec.Reason), rec.PlanRemaining, rec.CreditRemaining, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mirror record %s: %w", rec.CorrelationID, err)
	}
	return nil
}

// Release fills released_at once.
func (r *Repo) Release(ctx context.Context, correlationID string, at time.Time) error {
	query := `
		UPDATE consumption_records SET released_at = $2
		WHERE correlation_id = $1 AND released_at IS NULL
	`
	if _, err := r.db.Exec(ctx, query, correlationID, at); err != nil {
		return fmt.Errorf("failed to mirror release %s: %w", correlationID, err)
	}
	return nil
}

// Query returns records for accountID created in [from, to], oldest first.
func (r *Repo) Query(ctx context.Context, accountID string, from, to time.Time) ([]consumption.Record, error) {
	query := `
		SELECT correlation_id, account_id, resource, amount, breakdown,
		       outcome, reason, plan_remaining, credit_remaining, created_at, released_at
		FROM consumption_records
		WHERE account_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []consumption.Record
	for rows.Next() {
		var (
			rec                       consumption.Record
			resource, outcome, reason string
			breakdown                 []byte
		)
		err := rows.Scan(
			&rec.CorrelationID, &rec.AccountID, &resource, &rec.Amount, &breakdown,
			&outcome, &reason, &rec.PlanRemaining, &rec.CreditRemaining, &rec.CreatedAt, &rec.ReleasedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown of %s: %w", rec.CorrelationID, err)
		}
		rec.Resource = domain.ResourceType(resource)
		rec.Outcome = consumption.Outcome(outcome)
		rec.Reason = consumption.Reason(reason)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return out, nil
}
