package rights

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tixgate/actionset/model"
)

// PgGrantStore is a PostgreSQL-backed GrantStore using pgx/v5. Per-entity
// serialization uses an advisory transaction lock keyed by the entity, so a
// cap check and the write it guards commit as one unit.
type PgGrantStore struct {
	pool *pgxpool.Pool
}

// NewPgGrantStore creates a new PostgreSQL grant store.
func NewPgGrantStore(pool *pgxpool.Pool) *PgGrantStore {
	return &PgGrantStore{pool: pool}
}

// HealthCheck reports database connectivity for the readiness endpoint.
func (s *PgGrantStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgTxKey struct{}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the transaction carried by WithEntityLock, or the pool.
func (s *PgGrantStore) q(ctx context.Context) pgQuerier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// Get retrieves a grant row, from the enclosing transaction when inside
// WithEntityLock.
func (s *PgGrantStore) Get(ctx context.Context, grantee, entityType, entityValue string) (model.Grant, error) {
	var g model.Grant
	var rightsJSON []byte

	row := s.q(ctx).QueryRow(ctx, `
		SELECT grantee_id, entity_type, entity_value, rights, version, created_at, updated_at
		FROM rights_grants
		WHERE grantee_id = $1 AND entity_type = $2 AND entity_value = $3`,
		grantee, entityType, entityValue,
	)
	err := row.Scan(&g.GranteeID, &g.EntityType, &g.EntityValue, &rightsJSON, &g.Version, &g.CreatedAt, &g.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.Grant{}, model.NewNotFoundError(
			fmt.Sprintf("no grant for %q on %s/%s", grantee, entityType, entityValue),
		)
	}
	if err != nil {
		return model.Grant{}, fmt.Errorf("query grant: %w", err)
	}

	if err := json.Unmarshal(rightsJSON, &g.Rights); err != nil {
		return model.Grant{}, fmt.Errorf("unmarshal grant rights: %w", err)
	}
	return g, nil
}

// Grants retrieves all grant rows on one entity instance.
func (s *PgGrantStore) Grants(ctx context.Context, entityType, entityValue string) ([]model.Grant, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT grantee_id, entity_type, entity_value, rights, version, created_at, updated_at
		FROM rights_grants
		WHERE entity_type = $1 AND entity_value = $2
		ORDER BY grantee_id`,
		entityType, entityValue,
	)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var grants []model.Grant
	for rows.Next() {
		var g model.Grant
		var rightsJSON []byte
		if err := rows.Scan(&g.GranteeID, &g.EntityType, &g.EntityValue, &rightsJSON, &g.Version, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		if err := json.Unmarshal(rightsJSON, &g.Rights); err != nil {
			return nil, fmt.Errorf("unmarshal grant rights: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Put persists a grant row with optimistic locking.
func (s *PgGrantStore) Put(ctx context.Context, grant model.Grant) error {
	rightsJSON, err := json.Marshal(grant.Rights)
	if err != nil {
		return fmt.Errorf("marshal grant rights: %w", err)
	}
	now := time.Now().UTC()

	if grant.Version == 0 {
		tag, err := s.q(ctx).Exec(ctx, `
			INSERT INTO rights_grants (grantee_id, entity_type, entity_value, rights, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $5)
			ON CONFLICT (grantee_id, entity_type, entity_value) DO NOTHING`,
			grant.GranteeID, grant.EntityType, grant.EntityValue, rightsJSON, now,
		)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.NewConflictError(
				fmt.Sprintf("grant for %q on %s/%s already exists", grant.GranteeID, grant.EntityType, grant.EntityValue),
			)
		}
		return nil
	}

	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE rights_grants SET rights = $1, version = $2, updated_at = $3
		WHERE grantee_id = $4 AND entity_type = $5 AND entity_value = $6 AND version = $7`,
		rightsJSON, grant.Version+1, now,
		grant.GranteeID, grant.EntityType, grant.EntityValue, grant.Version,
	)
	if err != nil {
		return fmt.Errorf("update grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("grant for %q on %s/%s version conflict (expected %d)", grant.GranteeID, grant.EntityType, grant.EntityValue, grant.Version),
		)
	}
	return nil
}

// WithEntityLock opens a transaction, takes an advisory lock derived from
// the entity key, and runs fn with the transaction carried in its context.
func (s *PgGrantStore) WithEntityLock(ctx context.Context, entityType, entityValue string, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin grant tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		entityType+"/"+entityValue,
	); err != nil {
		return fmt.Errorf("acquire entity lock: %w", err)
	}

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
