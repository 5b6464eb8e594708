package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/model"
)

type OutlineVariant string

const (
	OutlineFresh  OutlineVariant = "fresh"
	OutlineRevise OutlineVariant = "revise"
)

type Config struct {
	Timeout             int
	MaxInputChars       int
	CreativeTemperature float64
	ExperienceChars     int
}

type OutlineInput struct {
	JobDescription   string
	CVText           string
	Extraction       *model.JobExtraction
	Analysis         *model.TechnicalAnalysis
	UserFeedback     string
	PreviousProposal string
}

type ComposeInput struct {
	JobDescription string
	CVText         string
	Extraction     *model.JobExtraction
	Outline        *model.ProposalOutline
	StyleReference string
}

type Request struct {
	JobDescription   string
	CVText           string
	UserFeedback     string
	PreviousProposal string
	StyleReference   string
}

type Result struct {
	Proposal   string
	Extraction *model.JobExtraction
	Analysis   *model.TechnicalAnalysis
	Outline    *model.ProposalOutline
	Variant    OutlineVariant
}

// Pipeline runs the generation stages. Each stage is one chat call and a
// failing stage aborts the run.
type Pipeline struct {
	gen ai.IGenerator
	cfg Config
}

func New(gen ai.IGenerator, cfg Config) *Pipeline {
	return &Pipeline{gen: gen, cfg: cfg}
}

func (p *Pipeline) Run(ctx context.Context, req *Request) (*Result, error) {
	extraction, err := p.Extract(ctx, req.JobDescription)
	if err != nil {
		return nil, err
	}
	analysis, err := p.Analyze(ctx, extraction, req.CVText)
	if err != nil {
		return nil, err
	}
	outline, variant, err := p.Outline(ctx, &OutlineInput{
		JobDescription:   req.JobDescription,
		CVText:           req.CVText,
		Extraction:       extraction,
		Analysis:         analysis,
		UserFeedback:     req.UserFeedback,
		PreviousProposal: req.PreviousProposal,
	})
	if err != nil {
		return nil, err
	}
	proposal, err := p.Compose(ctx, &ComposeInput{
		JobDescription: req.JobDescription,
		CVText:         req.CVText,
		Extraction:     extraction,
		Outline:        outline,
		StyleReference: req.StyleReference,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Proposal:   proposal,
		Extraction: extraction,
		Analysis:   analysis,
		Outline:    outline,
		Variant:    variant,
	}, nil
}

func (p *Pipeline) Extract(ctx context.Context, job string) (*model.JobExtraction, error) {
	out := &model.JobExtraction{}
	if err := p.chatJSON(ctx, "extraction", extractionSystemPrompt, p.clipInput(job), nil, out); err != nil {
		return nil, err
	}
	out.Tone = model.Tone(strings.ToLower(strings.TrimSpace(string(out.Tone))))
	if !out.Tone.Valid() {
		return nil, malformed("extraction", fmt.Sprintf("unknown tone %q", out.Tone))
	}
	if strings.TrimSpace(out.CoreProblem) == "" {
		return nil, malformed("extraction", "coreProblem is empty")
	}
	out.Tools = nonNil(out.Tools)
	out.KeyRequirements = nonNil(out.KeyRequirements)
	out.PersonalizationHooks = nonNil(out.PersonalizationHooks)
	out.Priorities = nonNil(out.Priorities)
	return out, nil
}

func (p *Pipeline) Analyze(ctx context.Context, extraction *model.JobExtraction, cvText string) (*model.TechnicalAnalysis, error) {
	out := &model.TechnicalAnalysis{}
	prompt := buildAnalysisPrompt(extraction, p.clipInput(cvText))
	if err := p.chatJSON(ctx, "analysis", analysisSystemPrompt, prompt, nil, out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Feasibility) == "" ||
		strings.TrimSpace(out.PotentialRisks) == "" ||
		strings.TrimSpace(out.SolutionPlan) == "" {
		return nil, malformed("analysis", "missing field")
	}
	return out, nil
}

// Outline picks the revise prompt whenever a previous proposal is given,
// regardless of feedback.
func (p *Pipeline) Outline(ctx context.Context, in *OutlineInput) (*model.ProposalOutline, OutlineVariant, error) {
	variant := OutlineFresh
	prompt := ""
	if in.PreviousProposal != "" {
		variant = OutlineRevise
		prompt = buildReviseOutlinePrompt(in, p.cfg.ExperienceChars)
	} else {
		prompt = buildFreshOutlinePrompt(in, p.cfg.ExperienceChars)
	}
	logutil.GetLogger(ctx).Info("outline variant selected", zap.String("variant", string(variant)))
	out := &model.ProposalOutline{}
	if err := p.chatJSON(ctx, "outline", outlineSystemPrompt, prompt, ai.Temperature(p.cfg.CreativeTemperature), out); err != nil {
		return nil, variant, err
	}
	if strings.TrimSpace(out.Hook) == "" ||
		strings.TrimSpace(out.ValueProposition) == "" ||
		strings.TrimSpace(out.CallToAction) == "" {
		return nil, variant, malformed("outline", "missing field")
	}
	out.ExperiencePoints = nonNil(out.ExperiencePoints)
	return out, variant, nil
}

func (p *Pipeline) Compose(ctx context.Context, in *ComposeInput) (string, error) {
	return p.chat(ctx, "composition", &ai.ChatRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: compositionSystemPrompt},
			{Role: ai.RoleUser, Content: buildCompositionPrompt(in, p.cfg.ExperienceChars)},
		},
		Temperature: ai.Temperature(p.cfg.CreativeTemperature),
	})
}

func (p *Pipeline) Score(ctx context.Context, job string, cvText string) (*model.MatchScore, error) {
	out := &model.MatchScore{}
	prompt := buildScorePrompt(p.clipInput(job), p.clipInput(cvText))
	if err := p.chatJSON(ctx, "score", scoreSystemPrompt, prompt, nil, out); err != nil {
		return nil, err
	}
	if out.Score < 0 || out.Score > 100 {
		return nil, malformed("score", fmt.Sprintf("score %d out of range", out.Score))
	}
	out.Strengths = nonNil(out.Strengths)
	out.Gaps = nonNil(out.Gaps)
	return out, nil
}

func (p *Pipeline) chatJSON(ctx context.Context, stage string, system string, user string, temperature *float64, dst interface{}) error {
	raw, err := p.chat(ctx, stage, &ai.ChatRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: system},
			{Role: ai.RoleUser, Content: user},
		},
		JSONMode:    true,
		Temperature: temperature,
	})
	if err != nil {
		return err
	}
	return decodeObject(stage, raw, dst)
}

func (p *Pipeline) chat(ctx context.Context, stage string, req *ai.ChatRequest) (string, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.Timeout)*time.Second)
		defer cancel()
	}
	start := time.Now()
	resp, err := p.gen.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", stage, err)
	}
	logutil.GetLogger(ctx).Debug("stage finished",
		zap.String("stage", stage),
		zap.String("model", p.gen.ModelName()),
		zap.Duration("cost", time.Since(start)))
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", malformed(stage, "empty response")
	}
	return text, nil
}

func (p *Pipeline) clipInput(s string) string {
	return clip(s, p.cfg.MaxInputChars)
}
