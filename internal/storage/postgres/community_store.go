// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/distrowiki/catalogd/internal/catalog"
)

// CommunityStoreConfig controls the Postgres connection pool used for
// community rows (votes and crowd-sourced edits).
type CommunityStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// CommunityStore persists votes and edits. Uniqueness (one vote per user per
// distribution) is enforced by database constraints, not application code.
type CommunityStore struct {
	pool dbPool
}

// NewCommunityStore creates a Postgres-backed CommunityStore.
func NewCommunityStore(ctx context.Context, cfg CommunityStoreConfig) (*CommunityStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CommunityStore{pool: pool}, nil
}

// NewCommunityStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewCommunityStoreWithPool(pool dbPool) (*CommunityStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CommunityStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CommunityStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertVote stores a new vote. Missing status defaults to pending.
func (s *CommunityStore) InsertVote(ctx context.Context, vote catalog.Vote) error {
	if vote.ID == "" {
		return fmt.Errorf("vote id is required")
	}
	if vote.DistroID == "" {
		return fmt.Errorf("distro id is required")
	}
	if vote.Score < 1 || vote.Score > 5 {
		return fmt.Errorf("score must be between 1 and 5")
	}
	if vote.Status == "" {
		vote.Status = catalog.StatusPending
	}
	query := `
INSERT INTO votes (id, user_id, distro_id, score, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.pool.Exec(ctx, query,
		vote.ID, vote.UserID, vote.DistroID, vote.Score, string(vote.Status), vote.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// ListVotes returns every vote for one distribution, newest first.
func (s *CommunityStore) ListVotes(ctx context.Context, distroID string) ([]catalog.Vote, error) {
	query := `
SELECT id, user_id, distro_id, score, status, created_at
FROM votes
WHERE distro_id = $1
ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, distroID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []catalog.Vote
	for rows.Next() {
		var (
			v      catalog.Vote
			status string
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.DistroID, &v.Score, &status, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Status = catalog.VoteStatus(status)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

// InsertEdit stores a crowd-sourced field correction, pending by default.
func (s *CommunityStore) InsertEdit(ctx context.Context, edit catalog.Edit) error {
	if edit.ID == "" {
		return fmt.Errorf("edit id is required")
	}
	if edit.DistroID == "" {
		return fmt.Errorf("distro id is required")
	}
	if edit.Field == "" {
		return fmt.Errorf("field is required")
	}
	if edit.Status == "" {
		edit.Status = catalog.StatusPending
	}
	query := `
INSERT INTO edits (id, user_id, distro_id, field, value, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := s.pool.Exec(ctx, query,
		edit.ID, edit.UserID, edit.DistroID, edit.Field, edit.Value, string(edit.Status), edit.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert edit: %w", err)
	}
	return nil
}

// ListEdits returns edits, optionally filtered by status, newest first.
func (s *CommunityStore) ListEdits(ctx context.Context, status catalog.VoteStatus) ([]catalog.Edit, error) {
	query := `
SELECT id, user_id, distro_id, field, value, status, created_at
FROM edits
WHERE $1 = '' OR status = $1
ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	defer rows.Close()

	var edits []catalog.Edit
	for rows.Next() {
		var (
			e         catalog.Edit
			rowStatus string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.DistroID, &e.Field, &e.Value, &rowStatus, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		e.Status = catalog.VoteStatus(rowStatus)
		edits = append(edits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edits: %w", err)
	}
	return edits, nil
}

// SetVoteStatus approves or rejects a vote.
func (s *CommunityStore) SetVoteStatus(ctx context.Context, id string, status catalog.VoteStatus) error {
	return s.setStatus(ctx, "votes", id, status)
}

// SetEditStatus approves or rejects an edit.
func (s *CommunityStore) SetEditStatus(ctx context.Context, id string, status catalog.VoteStatus) error {
	return s.setStatus(ctx, "edits", id, status)
}

func (s *CommunityStore) setStatus(ctx context.Context, table, id string, status catalog.VoteStatus) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	switch status {
	case catalog.StatusApproved, catalog.StatusRejected, catalog.StatusPending:
	default:
		return fmt.Errorf("invalid status %q", status)
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE id = $2`, table)
	tag, err := s.pool.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no %s row with id %q", table, id)
	}
	return nil
}
