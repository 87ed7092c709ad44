package pg

import (
	"context"
	"database/sql"
	"time"

	"commonpool.org/internal/governance"
	"commonpool.org/internal/ids"
	"commonpool.org/internal/pool"
)

var _ governance.Service = GovernanceStore{}

const proposalColumns = `
	id, pool_id, title, description, created_by, status,
	votes_for, votes_against, weighted_votes_for, weighted_votes_against,
	total_eligible_voters, created_at, expires_at`

func scanProposal(row interface{ Scan(...any) error }) (governance.Proposal, error) {
	var p governance.Proposal
	var status string
	err := row.Scan(&p.ID, &p.PoolID, &p.Title, &p.Description, &p.CreatedBy, &status,
		&p.VotesFor, &p.VotesAgainst, &p.WeightedVotesFor, &p.WeightedVotesAgainst,
		&p.TotalEligibleVoters, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return governance.Proposal{}, err
	}
	p.Status = governance.Status(status)
	return p, nil
}

func (s GovernanceStore) CreateProposal(ctx context.Context, poolID, actorID, title, description string) (governance.Proposal, error) {
	title = governance.Sanitize(title)
	description = governance.Sanitize(description)
	if title == "" || description == "" {
		return governance.Proposal{}, governance.ErrInvalidInput
	}

	p, err := s.GetPool(ctx, poolID)
	if err != nil {
		return governance.Proposal{}, err
	}
	if p.Frozen {
		return governance.Proposal{}, pool.ErrFrozen
	}
	if _, err := s.GetMember(ctx, poolID, actorID); err != nil {
		return governance.Proposal{}, err
	}

	settings := p.Governance.Normalized()
	now := time.Now().UTC()
	prop := governance.Proposal{
		ID:                  ids.New(),
		PoolID:              poolID,
		Title:               title,
		Description:         description,
		CreatedBy:           actorID,
		Status:              governance.StatusActive,
		TotalEligibleVoters: p.MemberCount,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(settings.VotingDurationDays) * 24 * time.Hour),
	}
	_, err = s.db.ExecContext(ctx, `
		insert into proposals(id, pool_id, title, description, created_by, status,
			votes_for, votes_against, weighted_votes_for, weighted_votes_against,
			total_eligible_voters, created_at, expires_at)
		values ($1,$2,$3,$4,$5,$6,0,0,0,0,$7,$8,$9)
	`, prop.ID, prop.PoolID, prop.Title, prop.Description, prop.CreatedBy,
		string(prop.Status), prop.TotalEligibleVoters, prop.CreatedAt, prop.ExpiresAt)
	if err != nil {
		return governance.Proposal{}, err
	}
	return prop, nil
}

// CastVote inserts the vote and bumps the denormalized tallies in one
// transaction. The (proposal_id, voter_id) primary key is the duplicate
// guard: a losing racer hits a unique violation, not a double count.
func (s GovernanceStore) CastVote(ctx context.Context, poolID, proposalID, voterID string, choice governance.Choice) (governance.Vote, error) {
	if _, err := governance.ParseChoice(string(choice)); err != nil {
		return governance.Vote{}, err
	}

	p, err := s.GetPool(ctx, poolID)
	if err != nil {
		return governance.Vote{}, err
	}
	if p.Frozen {
		return governance.Vote{}, pool.ErrFrozen
	}
	member, err := s.GetMember(ctx, poolID, voterID)
	if err != nil {
		return governance.Vote{}, err
	}
	weight := governance.VoteWeight(p.Tier, member.ReputationScore)

	var vote governance.Vote
	err = s.withSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		var expiresAt time.Time
		err := tx.QueryRowContext(ctx, `
			select status, expires_at from proposals
			where id=$1 and pool_id=$2 for update
		`, proposalID, poolID).Scan(&status, &expiresAt)
		if err == sql.ErrNoRows {
			return governance.ErrNotFound
		}
		if err != nil {
			return err
		}
		if governance.Status(status) != governance.StatusActive {
			return governance.ErrProposalClosed
		}
		now := time.Now().UTC()
		if !now.Before(expiresAt) {
			return governance.ErrVotingEnded
		}

		vote = governance.Vote{
			ProposalID: proposalID,
			PoolID:     poolID,
			VoterID:    voterID,
			Choice:     choice,
			Weight:     weight,
			CastAt:     now,
		}
		_, err = tx.ExecContext(ctx, `
			insert into votes(proposal_id, voter_id, pool_id, choice, weight, cast_at)
			values ($1,$2,$3,$4,$5,$6)
		`, vote.ProposalID, vote.VoterID, vote.PoolID, string(vote.Choice), vote.Weight, vote.CastAt)
		if err != nil {
			if isUniqueViolation(err) {
				return governance.ErrAlreadyVoted
			}
			return err
		}

		switch choice {
		case governance.ChoiceFor:
			_, err = tx.ExecContext(ctx, `
				update proposals set votes_for = votes_for + 1,
					weighted_votes_for = weighted_votes_for + $2
				where id=$1`, proposalID, weight)
		case governance.ChoiceAgainst:
			_, err = tx.ExecContext(ctx, `
				update proposals set votes_against = votes_against + 1,
					weighted_votes_against = weighted_votes_against + $2
				where id=$1`, proposalID, weight)
		}
		return err
	})
	if err != nil {
		return governance.Vote{}, err
	}

	_ = s.IncrementCounter(ctx, poolID, voterID, pool.CounterVotingParticipation)
	return vote, nil
}

func (s GovernanceStore) Close(ctx context.Context, poolID, proposalID, actorID string) (governance.Outcome, error) {
	p, err := s.GetPool(ctx, poolID)
	if err != nil {
		return governance.Outcome{}, err
	}
	if p.Frozen {
		return governance.Outcome{}, pool.ErrFrozen
	}
	member, err := s.GetMember(ctx, poolID, actorID)
	if err != nil {
		return governance.Outcome{}, err
	}
	if !member.IsAdmin() {
		return governance.Outcome{}, pool.ErrPermissionDenied
	}
	return s.resolve(ctx, p, proposalID, governance.TriggerManual)
}

func (s GovernanceStore) ResolveAllExpired(ctx context.Context) ([]governance.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, pool_id from proposals
		where status=$1 and expires_at <= now()
		order by expires_at
	`, string(governance.StatusActive))
	if err != nil {
		return nil, err
	}
	type pending struct{ id, poolID string }
	var expired []pending
	for rows.Next() {
		var e pending
		if err := rows.Scan(&e.id, &e.poolID); err != nil {
			rows.Close()
			return nil, err
		}
		expired = append(expired, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var outcomes []governance.Outcome
	for _, e := range expired {
		p, err := s.GetPool(ctx, e.poolID)
		if err != nil {
			continue
		}
		out, err := s.resolve(ctx, p, e.id, governance.TriggerScheduled)
		if err != nil {
			// Lost the race to a manual close; nothing to settle.
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// resolve settles one proposal. The row lock plus the status precondition
// make the active-to-terminal transition single-shot under races.
func (s GovernanceStore) resolve(ctx context.Context, p pool.Pool, proposalID string, trigger governance.Trigger) (governance.Outcome, error) {
	var out governance.Outcome
	err := s.withSerializable(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`select`+proposalColumns+` from proposals where id=$1 and pool_id=$2 for update`,
			proposalID, p.ID)
		prop, err := scanProposal(row)
		if err == sql.ErrNoRows {
			return governance.ErrNotFound
		}
		if err != nil {
			return err
		}
		if prop.Status != governance.StatusActive {
			return governance.ErrProposalClosed
		}

		threshold := p.Governance.Normalized().ApprovalThreshold
		forTotal, total := governance.Tally(prop, p.Tier)
		approval := governance.Approval(forTotal, total)
		status := governance.Decide(approval, threshold, trigger)

		res, err := tx.ExecContext(ctx, `
			update proposals set status=$2 where id=$1 and status=$3
		`, proposalID, string(status), string(governance.StatusActive))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return governance.ErrProposalClosed
		}

		out = governance.Outcome{
			ProposalID:      prop.ID,
			PoolID:          prop.PoolID,
			Status:          status,
			ApprovalPercent: approval,
			Threshold:       threshold,
			Trigger:         trigger,
		}
		return nil
	})
	if err != nil {
		return governance.Outcome{}, err
	}
	return out, nil
}

func (s GovernanceStore) GetProposal(ctx context.Context, poolID, proposalID string) (governance.Proposal, error) {
	row := s.db.QueryRowContext(ctx,
		`select`+proposalColumns+` from proposals where id=$1 and pool_id=$2`,
		proposalID, poolID)
	prop, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return governance.Proposal{}, governance.ErrNotFound
	}
	return prop, err
}

func (s GovernanceStore) ListProposals(ctx context.Context, poolID string, status governance.Status) ([]governance.Proposal, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select`+proposalColumns+` from proposals
		where pool_id=$1 and ($2 = '' or status = $2)
		order by created_at, id
	`, poolID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []governance.Proposal
	for rows.Next() {
		prop, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prop)
	}
	return out, rows.Err()
}
