package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/proposal/internal/config"
	"github.com/xxxsen/proposal/internal/pkg/errcode"
	"github.com/xxxsen/proposal/internal/pkg/response"
	"github.com/xxxsen/proposal/internal/service"
)

type ProposalHandler struct {
	proposals  *service.ProposalService
	validation config.ValidationConfig
}

func NewProposalHandler(proposals *service.ProposalService, validation config.ValidationConfig) *ProposalHandler {
	return &ProposalHandler{proposals: proposals, validation: validation}
}

type generateProposalRequest struct {
	JobDescription   string `json:"job_description"`
	UserFeedback     string `json:"user_feedback"`
	PreviousProposal string `json:"previous_proposal"`
	PreviousContext  string `json:"previous_context"`
}

type matchScoreRequest struct {
	JobDescription string `json:"job_description"`
}

func (h *ProposalHandler) bindGenerate(c *gin.Context) (*service.GenerateRequest, bool) {
	var req generateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return nil, false
	}
	job := strings.TrimSpace(req.JobDescription)
	if !minChars(job, h.validation.JobMinChars) {
		tooShort(c, "job_description", h.validation.JobMinChars)
		return nil, false
	}
	return &service.GenerateRequest{
		UserID:           getUserID(c),
		JobDescription:   job,
		UserFeedback:     strings.TrimSpace(req.UserFeedback),
		PreviousProposal: req.PreviousProposal,
		PreviousContext:  req.PreviousContext,
	}, true
}

func (h *ProposalHandler) Generate(c *gin.Context) {
	req, ok := h.bindGenerate(c)
	if !ok {
		return
	}
	res, err := h.proposals.GenerateProposal(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ProposalHandler) Evaluate(c *gin.Context) {
	req, ok := h.bindGenerate(c)
	if !ok {
		return
	}
	res, err := h.proposals.Evaluate(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ProposalHandler) Score(c *gin.Context) {
	var req matchScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	job := strings.TrimSpace(req.JobDescription)
	if !minChars(job, h.validation.JobMinChars) {
		tooShort(c, "job_description", h.validation.JobMinChars)
		return
	}
	score, err := h.proposals.CalculateMatchScore(c.Request.Context(), getUserID(c), job)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, score)
}
