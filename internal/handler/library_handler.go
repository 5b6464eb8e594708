package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/proposal/internal/pkg/errcode"
	"github.com/xxxsen/proposal/internal/pkg/response"
	"github.com/xxxsen/proposal/internal/service"
)

type LibraryHandler struct {
	library *service.LibraryService
}

func NewLibraryHandler(library *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

type saveProposalRequest struct {
	JobDescription string `json:"job_description"`
	ProposalText   string `json:"proposal_text"`
	Notes          string `json:"notes"`
}

type searchLibraryRequest struct {
	JobDescription string `json:"job_description"`
	Limit          int    `json:"limit"`
}

func (h *LibraryHandler) Save(c *gin.Context) {
	var req saveProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	job := strings.TrimSpace(req.JobDescription)
	text := strings.TrimSpace(req.ProposalText)
	if job == "" || text == "" {
		response.Error(c, errcode.ErrInvalid, "job_description and proposal_text are required")
		return
	}
	item, err := h.library.Save(c.Request.Context(), getUserID(c), job, text, strings.TrimSpace(req.Notes))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

func (h *LibraryHandler) List(c *gin.Context) {
	items, err := h.library.List(c.Request.Context(), getUserID(c), queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *LibraryHandler) Search(c *gin.Context) {
	var req searchLibraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	job := strings.TrimSpace(req.JobDescription)
	if job == "" {
		response.Error(c, errcode.ErrInvalid, "job_description is required")
		return
	}
	items, err := h.library.Similar(c.Request.Context(), getUserID(c), job, req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}
