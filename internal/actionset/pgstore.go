package actionset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tixgate/actionset/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. Actions and the rights
// stamp are stored as JSONB; version checks ride on the UPDATE predicates so
// no explicit row locks are needed.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL action set store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck reports database connectivity for the readiness endpoint.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts a new set with version 1.
func (s *PgStore) Create(ctx context.Context, set *model.ActionSet) error {
	actionsJSON, rightsJSON, metaJSON, err := marshalSet(set)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	set.Version = 1
	set.CreatedAt = now
	set.UpdatedAt = now

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO action_sets (id, name, tenant_id, owner, rights, meta, actions, consumed, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, 1, $8, $8)
		ON CONFLICT (tenant_id, id) DO NOTHING`,
		set.ID, set.Name, set.TenantID, set.Owner, rightsJSON, metaJSON, actionsJSON, now,
	)
	if err != nil {
		return fmt.Errorf("insert action set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf("action set %q already exists", set.ID))
	}
	return nil
}

// Get retrieves a set by tenant and ID.
func (s *PgStore) Get(ctx context.Context, tenantID, id string) (model.ActionSet, error) {
	var set model.ActionSet
	var actionsJSON, rightsJSON, metaJSON []byte

	row := s.pool.QueryRow(ctx, `
		SELECT id, name, tenant_id, owner, rights, meta, actions, consumed, version, created_at, updated_at
		FROM action_sets
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	err := row.Scan(&set.ID, &set.Name, &set.TenantID, &set.Owner, &rightsJSON, &metaJSON, &actionsJSON,
		&set.Consumed, &set.Version, &set.CreatedAt, &set.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.ActionSet{}, model.NewNotFoundError(fmt.Sprintf("action set %q not found", id))
	}
	if err != nil {
		return model.ActionSet{}, fmt.Errorf("query action set: %w", err)
	}

	if err := unmarshalSet(&set, actionsJSON, rightsJSON, metaJSON); err != nil {
		return model.ActionSet{}, err
	}
	return set, nil
}

// List returns the owner's sets in a tenant, newest first.
func (s *PgStore) List(ctx context.Context, tenantID, owner string) ([]model.ActionSetSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, owner, actions, consumed, created_at, updated_at
		FROM action_sets
		WHERE tenant_id = $1 AND owner = $2
		ORDER BY created_at DESC`,
		tenantID, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query action sets: %w", err)
	}
	defer rows.Close()

	var out []model.ActionSetSummary
	for rows.Next() {
		var set model.ActionSet
		var actionsJSON []byte
		if err := rows.Scan(&set.ID, &set.Name, &set.Owner, &actionsJSON, &set.Consumed, &set.CreatedAt, &set.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan action set: %w", err)
		}
		if err := json.Unmarshal(actionsJSON, &set.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
		out = append(out, set.Summary())
	}
	return out, rows.Err()
}

// Update persists a set if the version still matches, then bumps it.
func (s *PgStore) Update(ctx context.Context, set *model.ActionSet) error {
	actionsJSON, rightsJSON, metaJSON, err := marshalSet(set)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		UPDATE action_sets
		SET rights = $1, meta = $2, actions = $3, version = $4, updated_at = $5
		WHERE tenant_id = $6 AND id = $7 AND version = $8`,
		rightsJSON, metaJSON, actionsJSON, set.Version+1, now,
		set.TenantID, set.ID, set.Version,
	)
	if err != nil {
		return fmt.Errorf("update action set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("action set %q version conflict (expected %d)", set.ID, set.Version),
		)
	}

	set.Version++
	set.UpdatedAt = now
	return nil
}

// Consume flips the consumed flag false to true. The predicate makes the
// flip atomic; only the winning statement reports an affected row.
func (s *PgStore) Consume(ctx context.Context, tenantID, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE action_sets
		SET consumed = true, version = version + 1, updated_at = $1
		WHERE tenant_id = $2 AND id = $3 AND consumed = false`,
		time.Now().UTC(), tenantID, id,
	)
	if err != nil {
		return false, fmt.Errorf("consume action set: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func marshalSet(set *model.ActionSet) (actionsJSON, rightsJSON, metaJSON []byte, err error) {
	actionsJSON, err = json.Marshal(set.Actions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	rights := set.Rights
	if rights == nil {
		rights = map[string][]string{}
	}
	rightsJSON, err = json.Marshal(rights)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal rights: %w", err)
	}
	meta := set.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err = json.Marshal(meta)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal meta: %w", err)
	}
	return actionsJSON, rightsJSON, metaJSON, nil
}

func unmarshalSet(set *model.ActionSet, actionsJSON, rightsJSON, metaJSON []byte) error {
	if err := json.Unmarshal(actionsJSON, &set.Actions); err != nil {
		return fmt.Errorf("unmarshal actions: %w", err)
	}
	if err := json.Unmarshal(rightsJSON, &set.Rights); err != nil {
		return fmt.Errorf("unmarshal rights: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &set.Meta); err != nil {
		return fmt.Errorf("unmarshal meta: %w", err)
	}
	return nil
}
