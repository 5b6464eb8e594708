package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/proposal/internal/model"
	"github.com/xxxsen/proposal/internal/pipeline"
	"github.com/xxxsen/proposal/internal/pkg/render"
)

type GenerateRequest struct {
	UserID           string
	JobDescription   string
	UserFeedback     string
	PreviousProposal string
	PreviousContext  string
}

type GenerateResult struct {
	Proposal     string `json:"proposal"`
	Context      string `json:"context"`
	ProposalHTML string `json:"proposal_html"`
}

type EvaluateResult struct {
	GenerateResult
	MatchScore *model.MatchScore `json:"match_score"`
}

type ProposalService struct {
	retriever *pipeline.Retriever
	pipeline  *pipeline.Pipeline
	library   *LibraryService
}

func NewProposalService(retriever *pipeline.Retriever, p *pipeline.Pipeline, library *LibraryService) *ProposalService {
	return &ProposalService{retriever: retriever, pipeline: p, library: library}
}

// GenerateProposal retrieves the owner's CV and runs the full pipeline. A
// missing CV fails before any model is asked to generate.
func (s *ProposalService) GenerateProposal(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	retrieval, err := s.retriever.Retrieve(ctx, req.UserID, req.JobDescription)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, req, retrieval)
}

func (s *ProposalService) CalculateMatchScore(ctx context.Context, userID string, job string) (*model.MatchScore, error) {
	retrieval, err := s.retriever.Retrieve(ctx, userID, job)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Score(ctx, job, retrieval.Profile.CVText)
}

// Evaluate generates a proposal and a match score from one retrieval. The
// two branches run concurrently and either failing fails the call.
func (s *ProposalService) Evaluate(ctx context.Context, req *GenerateRequest) (*EvaluateResult, error) {
	retrieval, err := s.retriever.Retrieve(ctx, req.UserID, req.JobDescription)
	if err != nil {
		return nil, err
	}
	var (
		gen   *GenerateResult
		score *model.MatchScore
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		gen, err = s.generate(ectx, req, retrieval)
		return err
	})
	eg.Go(func() error {
		var err error
		score, err = s.pipeline.Score(ectx, req.JobDescription, retrieval.Profile.CVText)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &EvaluateResult{GenerateResult: *gen, MatchScore: score}, nil
}

func (s *ProposalService) generate(ctx context.Context, req *GenerateRequest, retrieval *pipeline.Retrieval) (*GenerateResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", req.UserID))
	if req.PreviousContext != "" {
		_, ok := pipeline.ParseContext(req.PreviousContext)
		logger.Info("previous context received", zap.Bool("usable", ok))
	}
	styleRef := ""
	if s.library != nil {
		ref, err := s.library.StyleReference(ctx, req.UserID, retrieval.JobEmbedding)
		if err != nil {
			return nil, err
		}
		styleRef = ref
	}
	res, err := s.pipeline.Run(ctx, &pipeline.Request{
		JobDescription:   req.JobDescription,
		CVText:           retrieval.Profile.CVText,
		UserFeedback:     req.UserFeedback,
		PreviousProposal: req.PreviousProposal,
		StyleReference:   styleRef,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := pipeline.EncodeContext(res.Extraction, res.Analysis)
	if err != nil {
		return nil, err
	}
	html, err := render.Markdown(res.Proposal)
	if err != nil {
		logger.Warn("render proposal html failed", zap.Error(err))
	}
	logger.Info("proposal generated",
		zap.String("variant", string(res.Variant)),
		zap.Bool("style_reference", styleRef != ""),
		zap.Int("chars", len([]rune(res.Proposal))))
	return &GenerateResult{
		Proposal:     res.Proposal,
		Context:      encoded,
		ProposalHTML: html,
	}, nil
}
