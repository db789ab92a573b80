package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/domainiq/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: DomainRepository implements domain.RecordStore.
var _ domain.RecordStore = (*DomainRepository)(nil)

// DomainRepository implements domain.RecordStore using SQLite.
type DomainRepository struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*DomainRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and ":memory:"
	// databases are private to the connection that created them.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*DomainRepository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &DomainRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *DomainRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (r *DomainRepository) DB() *sql.DB {
	return r.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `SELECT tenant_id, id, hostname, status, verification_token, verified_at,
	ssl_state, provider_hostname_id, failure_kind, last_error, revision, created_at, updated_at
	FROM domains`

func (r *DomainRepository) Get(ctx context.Context, tenantID string) (domain.DomainRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectColumns+` WHERE tenant_id = ?`, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DomainRecord{}, domain.ErrNotConfigured
	}
	return rec, err
}

// Put replaces whatever record the tenant had, keeping the caller's revision.
func (r *DomainRepository) Put(ctx context.Context, rec domain.DomainRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO domains (tenant_id, id, hostname, status, verification_token, verified_at,
			ssl_state, provider_hostname_id, failure_kind, last_error, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id) DO UPDATE SET
			id = excluded.id,
			hostname = excluded.hostname,
			status = excluded.status,
			verification_token = excluded.verification_token,
			verified_at = excluded.verified_at,
			ssl_state = excluded.ssl_state,
			provider_hostname_id = excluded.provider_hostname_id,
			failure_kind = excluded.failure_kind,
			last_error = excluded.last_error,
			revision = excluded.revision,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		rec.TenantID, rec.ID, rec.Hostname, string(rec.Status), rec.VerificationToken,
		formatNullTime(rec.VerifiedAt),
		rec.SSLState, rec.ProviderHostnameID, string(rec.FailureKind), rec.LastError,
		rec.Revision,
		rec.CreatedAt.UTC().Format(timeFormat),
		rec.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upserting domain: %w", err)
	}
	return nil
}

// CompareAndSwap is a single guarded UPDATE, so the check and the write are
// atomic without an explicit transaction.
func (r *DomainRepository) CompareAndSwap(ctx context.Context, expected domain.Guard, next domain.DomainRecord) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE domains SET
			hostname = ?, status = ?, verification_token = ?, verified_at = ?,
			ssl_state = ?, provider_hostname_id = ?, failure_kind = ?, last_error = ?,
			revision = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ? AND revision = ?`,
		next.Hostname, string(next.Status), next.VerificationToken, formatNullTime(next.VerifiedAt),
		next.SSLState, next.ProviderHostnameID, string(next.FailureKind), next.LastError,
		expected.Revision+1, next.UpdatedAt.UTC().Format(timeFormat),
		next.TenantID, expected.ID, string(expected.Status), expected.Revision,
	)
	if err != nil {
		return false, fmt.Errorf("updating domain: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *DomainRepository) Delete(ctx context.Context, tenantID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM domains WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("deleting domain: %w", err)
	}
	return nil
}

func (r *DomainRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.DomainRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	query := selectColumns +
		` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)` +
		` ORDER BY updated_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing domains: %w", err)
	}
	defer rows.Close()

	var records []domain.DomainRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.DomainRecord, error) {
	var rec domain.DomainRecord
	var status, failureKind, createdAt, updatedAt string
	var verifiedAt sql.NullString

	err := s.Scan(
		&rec.TenantID, &rec.ID, &rec.Hostname, &status, &rec.VerificationToken, &verifiedAt,
		&rec.SSLState, &rec.ProviderHostnameID, &failureKind, &rec.LastError, &rec.Revision,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DomainRecord{}, err
		}
		return domain.DomainRecord{}, fmt.Errorf("scanning domain: %w", err)
	}

	rec.Status = domain.Status(status)
	rec.FailureKind = domain.ErrorKind(failureKind)
	if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return domain.DomainRecord{}, fmt.Errorf("scanning domain: created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return domain.DomainRecord{}, fmt.Errorf("scanning domain: updated_at: %w", err)
	}
	if verifiedAt.Valid {
		t, err := time.Parse(timeFormat, verifiedAt.String)
		if err != nil {
			return domain.DomainRecord{}, fmt.Errorf("scanning domain: verified_at: %w", err)
		}
		rec.VerifiedAt = &t
	}

	return rec, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}
