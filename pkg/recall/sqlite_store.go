package recall

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/codeready-toolchain/cake/pkg/metrics"
	"github.com/codeready-toolchain/cake/pkg/shared/textsim"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// sqliteStore is the durable C1 backend: a local embedded SQLite file
// accessed through sqlx for struct scanning, a single-process embedded
// file rather than a client-server database.
type sqliteStore struct {
	db *sqlx.DB
}

// Open opens (creating if absent) the recall store file at path and applies
// any pending migrations.
func Open(ctx context.Context, path string) (Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("recall: open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; WAL still allows concurrent readers

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recall: ping sqlite store: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recall: set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recall: apply migrations: %w", err)
	}

	metrics.DBConnectionsActive.Set(float64(db.Stats().OpenConnections))
	return &sqliteStore{db: db}, nil
}

type recordRow struct {
	Signature          string       `db:"signature"`
	Kind               string       `db:"kind"`
	Remainder          string       `db:"remainder"`
	FirstSeen          time.Time    `db:"first_seen"`
	LastSeen           time.Time    `db:"last_seen"`
	OccurrenceCount    int          `db:"occurrence_count"`
	InterventionCount  int          `db:"intervention_count"`
	SuccessCount       int          `db:"success_count"`
	LastInterventionAt sql.NullTime `db:"last_intervention_at"`
	LastIntervention   string       `db:"last_intervention"`
	ExpiresAt          time.Time    `db:"expires_at"`
}

func (r recordRow) toRecord() (Record, error) {
	sig, err := ParseSignature(r.Signature)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Signature:         sig,
		Kind:              r.Kind,
		Remainder:         r.Remainder,
		FirstSeen:         r.FirstSeen,
		LastSeen:          r.LastSeen,
		OccurrenceCount:   r.OccurrenceCount,
		InterventionCount: r.InterventionCount,
		SuccessCount:      r.SuccessCount,
		LastIntervention:  r.LastIntervention,
		ExpiresAt:         r.ExpiresAt,
	}
	if r.LastInterventionAt.Valid {
		rec.LastInterventionAt = r.LastInterventionAt.Time
	}
	return rec, nil
}

func (s *sqliteStore) Record(ctx context.Context, sig Signature, fields Fields) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recall: begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row recordRow
	err = tx.GetContext(ctx, &row, `SELECT * FROM recall_records WHERE signature = ?`, sig.String())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		expires := fields.Now.Add(ttlFor(1))
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recall_records
				(signature, kind, remainder, first_seen, last_seen, occurrence_count, intervention_count, success_count, last_intervention, expires_at)
			VALUES (?, ?, ?, ?, ?, 1, 0, 0, '', ?)`,
			sig.String(), fields.Kind, fields.Remainder, fields.Now, fields.Now, expires)
		if err != nil {
			return fmt.Errorf("recall: insert record: %w", err)
		}
	case err != nil:
		return fmt.Errorf("recall: lookup for record: %w", err)
	default:
		newCount := row.OccurrenceCount + 1
		expires := fields.Now.Add(ttlFor(newCount))
		_, err = tx.ExecContext(ctx, `
			UPDATE recall_records
			SET last_seen = ?, occurrence_count = ?, expires_at = ?, remainder = ?
			WHERE signature = ?`,
			fields.Now, newCount, expires, fields.Remainder, sig.String())
		if err != nil {
			return fmt.Errorf("recall: update record: %w", err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) Lookup(ctx context.Context, sig Signature) (Record, bool, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM recall_records WHERE signature = ?`, sig.String())
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("recall: lookup: %w", err)
	}
	rec, err := row.toRecord()
	if err != nil {
		return Record{}, false, err
	}
	if isExpired(rec, time.Now()) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *sqliteStore) Similar(ctx context.Context, tokens []string, threshold float64) ([]Record, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM recall_records WHERE expires_at > ?`, time.Now()); err != nil {
		return nil, fmt.Errorf("recall: similar scan: %w", err)
	}

	var matches []scoredRecord
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			continue
		}
		score := textsim.JaccardTokenSet(tokens, strings.Fields(rec.Remainder))
		if score >= threshold {
			matches = append(matches, scoredRecord{rec: rec, score: score})
		}
	}
	return bestFirst(matches), nil
}

func (s *sqliteStore) MarkIntervention(ctx context.Context, sig Signature, text string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recall_records
		SET intervention_count = MIN(intervention_count + 1, occurrence_count), last_intervention = ?, last_intervention_at = ?
		WHERE signature = ?`, text, now, sig.String())
	if err != nil {
		return fmt.Errorf("recall: mark intervention: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *sqliteStore) MarkOutcome(ctx context.Context, sig Signature, success bool) error {
	if !success {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE recall_records
		SET success_count = success_count + 1
		WHERE signature = ? AND success_count < intervention_count`, sig.String())
	if err != nil {
		return fmt.Errorf("recall: mark outcome: %w", err)
	}
	_ = res // a zero-rows update (already saturated) is not an error
	return nil
}

func (s *sqliteStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recall_records WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("recall: purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recall: purge rows affected: %w", err)
	}
	return int(n), nil
}

func (s *sqliteStore) Degraded() bool { return false }

func (s *sqliteStore) Close() error { return s.db.Close() }

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recall: rows affected: %w", err)
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}
