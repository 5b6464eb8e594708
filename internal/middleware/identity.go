package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/proposal/internal/pkg/errcode"
	"github.com/xxxsen/proposal/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	UserIDHeader     = "X-User-Id"
)

// Owner ids name file store prefixes, so they stay a single path segment.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,127}$`)

// ValidUserID reports whether id can be used as an owner identity.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// Identity resolves the owner of a request. There are no accounts: every
// request belongs to defaultUserID unless the client names another owner in
// the X-User-Id header.
func Identity(defaultUserID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			userID = defaultUserID
		}
		if !ValidUserID(userID) {
			response.Error(c, errcode.ErrInvalid, "invalid "+UserIDHeader)
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}
