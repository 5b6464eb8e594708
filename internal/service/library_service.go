package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/model"
)

type SuccessfulProposalRepository interface {
	Create(ctx context.Context, item *model.SuccessfulProposal) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.SuccessfulProposal, error)
	NearestByUser(ctx context.Context, userID string, vec []float32, k int) ([]model.SuccessfulProposalMatch, error)
}

// LibraryService keeps proposals that won jobs. They are searched by the
// job they answered and reused as style references.
type LibraryService struct {
	items    SuccessfulProposalRepository
	embedder ai.IEmbedder
	now      func() time.Time
}

func NewLibraryService(items SuccessfulProposalRepository, embedder ai.IEmbedder) *LibraryService {
	return &LibraryService{items: items, embedder: embedder, now: time.Now}
}

func (s *LibraryService) Save(ctx context.Context, userID, job, proposal, notes string) (*model.SuccessfulProposal, error) {
	vec, err := s.embedder.Embed(ctx, job, ai.TaskRetrievalDocument)
	if err != nil {
		return nil, fmt.Errorf("embed job description: %w", err)
	}
	item := &model.SuccessfulProposal{
		ID:             newID(),
		UserID:         userID,
		JobDescription: job,
		ProposalText:   proposal,
		Notes:          notes,
		Embedding:      vec,
		Ctime:          s.now().UnixMilli(),
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *LibraryService) List(ctx context.Context, userID string, limit, offset int) ([]model.SuccessfulProposal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.items.ListByUser(ctx, userID, limit, offset)
}

func (s *LibraryService) Similar(ctx context.Context, userID, job string, k int) ([]model.SuccessfulProposalMatch, error) {
	vec, err := s.embedder.Embed(ctx, job, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed job description: %w", err)
	}
	return s.SimilarByVector(ctx, userID, vec, k)
}

func (s *LibraryService) SimilarByVector(ctx context.Context, userID string, vec []float32, k int) ([]model.SuccessfulProposalMatch, error) {
	if k <= 0 || k > 20 {
		k = 5
	}
	return s.items.NearestByUser(ctx, userID, vec, k)
}

// StyleReference returns the text of the owner's closest winning proposal,
// or an empty string when the library is empty.
func (s *LibraryService) StyleReference(ctx context.Context, userID string, jobVec []float32) (string, error) {
	matches, err := s.SimilarByVector(ctx, userID, jobVec, 1)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0].ProposalText, nil
}
