package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/federation"
	"commonpool.org/internal/ids"
	"commonpool.org/internal/pool"
)

var _ federation.Service = FederationStore{}

// requireOwner checks the actor owns a pool whose tier carries the feature.
func (s *Store) requireOwner(ctx context.Context, poolID, actorID string, f feature.Feature) (pool.Pool, error) {
	p, err := s.GetPool(ctx, poolID)
	if err != nil {
		return pool.Pool{}, err
	}
	if !feature.IsEnabled(p.Tier, f) {
		return pool.Pool{}, feature.ErrNotEntitled
	}
	member, err := s.GetMember(ctx, poolID, actorID)
	if err != nil {
		return pool.Pool{}, err
	}
	if member.Role != pool.RoleOwner {
		return pool.Pool{}, pool.ErrPermissionDenied
	}
	return p, nil
}

func (s FederationStore) Create(ctx context.Context, actorID, initialPoolID, title, description string, model federation.GovernanceModel) (federation.Federation, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return federation.Federation{}, federation.ErrInvalidInput
	}
	if model == "" {
		model = federation.ModelEqual
	}
	if _, err := s.requireOwner(ctx, initialPoolID, actorID, feature.FederationAccess); err != nil {
		return federation.Federation{}, err
	}

	fed := federation.Federation{
		ID:              ids.New(),
		Title:           title,
		Description:     description,
		MemberPools:     []string{initialPoolID},
		GovernanceModel: model,
		CreatedBy:       actorID,
		CreatedAt:       time.Now().UTC(),
	}
	err := s.withSerializable(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into federations(id, title, description, governance_model, created_by, created_at)
			values ($1,$2,$3,$4,$5,$6)
		`, fed.ID, fed.Title, fed.Description, string(fed.GovernanceModel), fed.CreatedBy, fed.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			insert into federation_members(federation_id, pool_id, joined_at)
			values ($1,$2,$3)
		`, fed.ID, initialPoolID, fed.CreatedAt)
		return err
	})
	if err != nil {
		return federation.Federation{}, err
	}
	return fed, nil
}

func (s FederationStore) Join(ctx context.Context, federationID, poolID, actorID string) error {
	if _, err := s.requireOwner(ctx, poolID, actorID, feature.FederationAccess); err != nil {
		return err
	}
	if _, err := s.Get(ctx, federationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into federation_members(federation_id, pool_id, joined_at)
		values ($1,$2,$3)
	`, federationID, poolID, time.Now().UTC())
	if isUniqueViolation(err) {
		return federation.ErrAlreadyMember
	}
	return err
}

func (s FederationStore) Contribute(ctx context.Context, federationID, poolID, actorID string, amount int64, description string) (federation.Entry, error) {
	if amount <= 0 {
		return federation.Entry{}, federation.ErrInvalidAmount
	}
	if _, err := s.requireOwner(ctx, poolID, actorID, feature.SharedWarChest); err != nil {
		return federation.Entry{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "War chest contribution"
	}

	var entry federation.Entry
	err := s.withSerializable(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`select true from federations where id=$1 for update`, federationID).Scan(&exists)
		if err == sql.ErrNoRows {
			return federation.ErrNotFound
		}
		if err != nil {
			return err
		}

		var prior int64
		err = tx.QueryRowContext(ctx, `
			select balance_after from federation_entries
			where federation_id=$1
			order by created_at desc, id desc
			limit 1
		`, federationID).Scan(&prior)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		entry = federation.Entry{
			ID:           ids.New(),
			FederationID: federationID,
			PoolID:       poolID,
			Kind:         federation.KindPoolContribution,
			Amount:       amount,
			Description:  description,
			CreatedBy:    actorID,
			CreatedAt:    time.Now().UTC(),
			BalanceAfter: prior + amount,
		}
		_, err = tx.ExecContext(ctx, `
			insert into federation_entries(id, federation_id, pool_id, kind, amount, description, created_by, created_at, balance_after)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, entry.ID, entry.FederationID, entry.PoolID, string(entry.Kind), entry.Amount,
			entry.Description, entry.CreatedBy, entry.CreatedAt, entry.BalanceAfter)
		return err
	})
	if err != nil {
		return federation.Entry{}, err
	}
	return entry, nil
}

func (s FederationStore) Get(ctx context.Context, federationID string) (federation.Federation, error) {
	var fed federation.Federation
	var model string
	err := s.db.QueryRowContext(ctx, `
		select id, title, description, governance_model, created_by, created_at
		from federations where id=$1
	`, federationID).Scan(&fed.ID, &fed.Title, &fed.Description, &model, &fed.CreatedBy, &fed.CreatedAt)
	if err == sql.ErrNoRows {
		return federation.Federation{}, federation.ErrNotFound
	}
	if err != nil {
		return federation.Federation{}, err
	}
	fed.GovernanceModel = federation.GovernanceModel(model)

	rows, err := s.db.QueryContext(ctx, `
		select pool_id from federation_members
		where federation_id=$1 order by joined_at, pool_id
	`, federationID)
	if err != nil {
		return federation.Federation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var poolID string
		if err := rows.Scan(&poolID); err != nil {
			return federation.Federation{}, err
		}
		fed.MemberPools = append(fed.MemberPools, poolID)
	}
	return fed, rows.Err()
}

func (s FederationStore) Overview(ctx context.Context, federationID string, limit int) (federation.Overview, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	fed, err := s.Get(ctx, federationID)
	if err != nil {
		return federation.Overview{}, err
	}

	var balance int64
	err = s.db.QueryRowContext(ctx, `
		select coalesce((select balance_after from federation_entries
			where federation_id=$1 order by created_at desc, id desc limit 1), 0)
	`, federationID).Scan(&balance)
	if err != nil {
		return federation.Overview{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, federation_id, pool_id, kind, amount, description, created_by, created_at, balance_after
		from federation_entries
		where federation_id=$1
		order by created_at desc, id desc
		limit $2
	`, federationID, limit)
	if err != nil {
		return federation.Overview{}, err
	}
	defer rows.Close()

	recent := make([]federation.Entry, 0, limit)
	for rows.Next() {
		var e federation.Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.FederationID, &e.PoolID, &kind, &e.Amount,
			&e.Description, &e.CreatedBy, &e.CreatedAt, &e.BalanceAfter); err != nil {
			return federation.Overview{}, err
		}
		e.Kind = federation.Kind(kind)
		recent = append(recent, e)
	}
	if err := rows.Err(); err != nil {
		return federation.Overview{}, err
	}

	summaries := make([]federation.PoolSummary, 0, len(fed.MemberPools))
	for _, id := range fed.MemberPools {
		p, err := s.GetPool(ctx, id)
		if err != nil {
			continue
		}
		summaries = append(summaries, federation.PoolSummary{PoolID: p.ID, Name: p.Name, MemberCount: p.MemberCount})
	}

	return federation.Overview{
		Federation:  fed,
		MemberPools: summaries,
		Balance:     balance,
		Recent:      recent,
	}, nil
}
