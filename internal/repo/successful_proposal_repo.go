package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/proposal/internal/model"
	"github.com/xxxsen/proposal/internal/pkg/dbutil"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

type SuccessfulProposalRepo struct {
	db *sql.DB
}

func NewSuccessfulProposalRepo(db *sql.DB) *SuccessfulProposalRepo {
	return &SuccessfulProposalRepo{db: db}
}

func (r *SuccessfulProposalRepo) Create(ctx context.Context, item *model.SuccessfulProposal) error {
	const query = `
		INSERT INTO successful_proposals (id, user_id, job_description, proposal_text, notes, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		item.JobDescription,
		item.ProposalText,
		item.Notes,
		pgvector.NewVector(item.Embedding),
		item.Ctime,
	)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *SuccessfulProposalRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.SuccessfulProposal, error) {
	const query = `
		SELECT id, user_id, job_description, proposal_text, notes, ctime
		FROM successful_proposals
		WHERE user_id = $1
		ORDER BY ctime DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SuccessfulProposal
	for rows.Next() {
		var item model.SuccessfulProposal
		if err := rows.Scan(&item.ID, &item.UserID, &item.JobDescription, &item.ProposalText, &item.Notes, &item.Ctime); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// NearestByUser returns up to k proposals of userID whose job description
// embedding is closest to vec.
func (r *SuccessfulProposalRepo) NearestByUser(ctx context.Context, userID string, vec []float32, k int) ([]model.SuccessfulProposalMatch, error) {
	const query = `
		SELECT id, user_id, job_description, proposal_text, notes, ctime, embedding <=> $2 AS distance
		FROM successful_proposals
		WHERE user_id = $1
		ORDER BY distance
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SuccessfulProposalMatch
	for rows.Next() {
		var item model.SuccessfulProposalMatch
		if err := rows.Scan(&item.ID, &item.UserID, &item.JobDescription, &item.ProposalText, &item.Notes, &item.Ctime, &item.Distance); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
