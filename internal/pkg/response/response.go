package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/proposal/internal/pkg/errcode"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, StatusOf(code), AsCodeErr(uint32(code), message))
}

// StatusOf maps an errcode to the http status written with it.
func StatusOf(code int) int {
	switch code {
	case errcode.ErrUnauthorized:
		return http.StatusUnauthorized
	case errcode.ErrForbidden:
		return http.StatusForbidden
	case errcode.ErrNotFound, errcode.ErrProfileNotFound:
		return http.StatusNotFound
	case errcode.ErrInvalid, errcode.ErrInvalidFile:
		return http.StatusBadRequest
	case errcode.ErrConflict:
		return http.StatusConflict
	case errcode.ErrTooMany:
		return http.StatusTooManyRequests
	case errcode.ErrAIUnavailable:
		return http.StatusServiceUnavailable
	case errcode.ErrMalformedOutput, errcode.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
