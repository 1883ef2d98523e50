package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

const proposalColumns = `proposal_id, conversation_id, proposer_id, participant_id, new_role, justification, status, created_at, decided_at`

// CreateProposal stores a role change proposal.
func (s *SQLiteStore) CreateProposal(ctx context.Context, p *domain.RoleProposal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO role_proposals (`+proposalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		p.ID, p.ConversationID, nullString(p.ProposerID), p.ParticipantID, p.NewRole, nullString(p.Justification),
		p.Status, p.CreatedAt)
	return err
}

// GetProposal retrieves a proposal by ID.
func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*domain.RoleProposal, error) {
	proposals, err := s.queryProposals(ctx, `WHERE proposal_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(proposals) == 0 {
		return nil, nil
	}
	return &proposals[0], nil
}

// ListProposals lists proposals of a conversation; an empty status matches all.
func (s *SQLiteStore) ListProposals(ctx context.Context, conversationID string, status domain.ProposalStatus) ([]domain.RoleProposal, error) {
	if status == "" {
		return s.queryProposals(ctx, `WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	}
	return s.queryProposals(ctx, `WHERE conversation_id = ? AND status = ? ORDER BY created_at ASC`, conversationID, status)
}

// TransitionProposal moves a proposal from one status to another.
// It reports false when the proposal was not in the from status.
func (s *SQLiteStore) TransitionProposal(ctx context.Context, id string, from, to domain.ProposalStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE role_proposals SET status = ?, decided_at = ? WHERE proposal_id = ? AND status = ?`,
		to, time.Now(), id, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ExpirePendingProposals expires every pending proposal of a conversation.
func (s *SQLiteStore) ExpirePendingProposals(ctx context.Context, conversationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE role_proposals SET status = ?, decided_at = ? WHERE conversation_id = ? AND status = ?`,
		domain.ProposalStatusExpired, time.Now(), conversationID, domain.ProposalStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListStaleProposals lists pending proposals created before the cutoff.
func (s *SQLiteStore) ListStaleProposals(ctx context.Context, createdBefore time.Time, limit int) ([]domain.RoleProposal, error) {
	return s.queryProposals(ctx, `WHERE status = ? AND created_at < ? ORDER BY created_at ASC LIMIT ?`,
		domain.ProposalStatusPending, createdBefore, limit)
}

func (s *SQLiteStore) queryProposals(ctx context.Context, where string, args ...interface{}) ([]domain.RoleProposal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+proposalColumns+` FROM role_proposals `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []domain.RoleProposal
	for rows.Next() {
		var p domain.RoleProposal
		var proposer, justification sql.NullString
		var decidedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.ConversationID, &proposer, &p.ParticipantID, &p.NewRole, &justification,
			&p.Status, &p.CreatedAt, &decidedAt); err != nil {
			return nil, err
		}
		p.ProposerID = proposer.String
		p.Justification = justification.String
		if decidedAt.Valid {
			t := decidedAt.Time
			p.DecidedAt = &t
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}
