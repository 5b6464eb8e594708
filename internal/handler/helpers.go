package handler

import (
	"errors"
	"strconv"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/middleware"
	"github.com/xxxsen/proposal/internal/pkg/errcode"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
	"github.com/xxxsen/proposal/internal/pkg/response"
)

const profileNotFoundMessage = "CV not found. Please upload your CV first."

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err))
	switch {
	case errors.Is(err, appErr.ErrProfileNotFound):
		response.Error(c, errcode.ErrProfileNotFound, profileNotFoundMessage)
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrUnsupportedFile):
		response.Error(c, errcode.ErrInvalidFile, "unsupported file, use pdf, docx or txt")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case appErr.IsConflict(err):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	case appErr.IsMalformed(err):
		response.Error(c, errcode.ErrMalformedOutput, "model returned an unexpected answer, please retry")
	case errors.Is(err, appErr.ErrUpstream):
		response.Error(c, errcode.ErrUpstream, "model provider failed, please retry")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

// minChars reports whether s has at least n characters.
func minChars(s string, n int) bool {
	return utf8.RuneCountInString(s) >= n
}

func tooShort(c *gin.Context, field string, n int) {
	response.Error(c, errcode.ErrInvalid, field+" must be at least "+strconv.Itoa(n)+" characters")
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
