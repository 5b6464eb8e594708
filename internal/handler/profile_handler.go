package handler

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/proposal/internal/config"
	"github.com/xxxsen/proposal/internal/pkg/errcode"
	"github.com/xxxsen/proposal/internal/pkg/response"
	"github.com/xxxsen/proposal/internal/service"
)

type ProfileHandler struct {
	profiles   *service.ProfileService
	validation config.ValidationConfig
}

func NewProfileHandler(profiles *service.ProfileService, validation config.ValidationConfig) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, validation: validation}
}

type uploadCVRequest struct {
	CVText string `json:"cv_text"`
}

type uploadCVResponse struct {
	Success   bool   `json:"success"`
	ProfileID string `json:"profile_id"`
}

func (h *ProfileHandler) Upload(c *gin.Context) {
	var req uploadCVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	text := strings.TrimSpace(req.CVText)
	if !minChars(text, h.validation.CVMinChars) {
		tooShort(c, "cv_text", h.validation.CVMinChars)
		return
	}
	id, err := h.profiles.UploadCV(c.Request.Context(), getUserID(c), text)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadCVResponse{Success: true, ProfileID: id})
}

func (h *ProfileHandler) UploadFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if file.Size > h.validation.MaxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.validation.MaxUploadBytes))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, h.validation.MaxUploadBytes+1))
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	if int64(len(data)) > h.validation.MaxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.validation.MaxUploadBytes))
		return
	}
	id, err := h.profiles.UploadCVFile(c.Request.Context(), getUserID(c), file.Filename, data)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadCVResponse{Success: true, ProfileID: id})
}

func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, profile)
}
