package pg

import (
	"context"
	"database/sql"
	"errors"

	"commonpool.org/internal/feature"
	"commonpool.org/internal/pool"
)

var _ pool.Store = (*Store)(nil)

const poolColumns = `
	p.id, p.name, p.tier, p.owner_id, p.frozen,
	p.approval_threshold, p.voting_duration_days, p.allow_reputation_weighting,
	p.created_at,
	(select count(*) from pool_members m where m.pool_id = p.id)`

func scanPool(row interface{ Scan(...any) error }) (pool.Pool, error) {
	var p pool.Pool
	var tier string
	err := row.Scan(
		&p.ID, &p.Name, &tier, &p.OwnerID, &p.Frozen,
		&p.Governance.ApprovalThreshold, &p.Governance.VotingDurationDays,
		&p.Governance.AllowReputationWeighting,
		&p.CreatedAt, &p.MemberCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return pool.Pool{}, pool.ErrNotFound
	}
	if err != nil {
		return pool.Pool{}, err
	}
	p.Tier = feature.ParseTier(tier)
	return p, nil
}

func (s *Store) GetPool(ctx context.Context, poolID string) (pool.Pool, error) {
	row := s.db.QueryRowContext(ctx, `select`+poolColumns+` from pools p where p.id=$1`, poolID)
	return scanPool(row)
}

func (s *Store) ListPools(ctx context.Context) ([]pool.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `select`+poolColumns+` from pools p order by p.created_at, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pool.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const memberColumns = `
	pool_id, user_id, role, reputation_score, contribution_score,
	voting_participation, proposal_accuracy, joined_at`

func scanMember(row interface{ Scan(...any) error }) (pool.Member, error) {
	var m pool.Member
	var role string
	err := row.Scan(
		&m.PoolID, &m.UserID, &role, &m.ReputationScore, &m.ContributionScore,
		&m.VotingParticipation, &m.ProposalAccuracy, &m.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return pool.Member{}, pool.ErrMemberNotFound
	}
	if err != nil {
		return pool.Member{}, err
	}
	m.Role = pool.Role(role)
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, poolID, userID string) (pool.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`select`+memberColumns+` from pool_members where pool_id=$1 and user_id=$2`,
		poolID, userID)
	return scanMember(row)
}

func (s *Store) ListMembers(ctx context.Context, poolID string) ([]pool.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`select`+memberColumns+` from pool_members where pool_id=$1 order by joined_at, user_id`,
		poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pool.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		// Distinguish empty membership from a missing pool.
		if _, err := s.GetPool(ctx, poolID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) IncrementCounter(ctx context.Context, poolID, userID string, counter pool.Counter) error {
	var column string
	switch counter {
	case pool.CounterContributionScore:
		column = "contribution_score"
	case pool.CounterVotingParticipation:
		column = "voting_participation"
	default:
		return pool.ErrMemberNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`update pool_members set `+column+` = `+column+` + 1 where pool_id=$1 and user_id=$2`,
		poolID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pool.ErrMemberNotFound
	}
	return nil
}

func (s *Store) SetReputation(ctx context.Context, poolID, userID string, score int) error {
	res, err := s.db.ExecContext(ctx,
		`update pool_members set reputation_score=$3 where pool_id=$1 and user_id=$2`,
		poolID, userID, score)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pool.ErrMemberNotFound
	}
	return nil
}
