package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/getnvoi/aven-sub001/internal/http/response"
	"github.com/getnvoi/aven-sub001/internal/pkg/ctxutil"
)

const (
	HeaderWorkspaceID = "X-Workspace-Id"
	HeaderUserID      = "X-User-Id"
)

// AttachRequestData reads the caller identity set by the upstream gateway and
// rejects requests that lack either id.
func AttachRequestData() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, errWS := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderWorkspaceID)))
		user, errUser := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderUserID)))
		if errWS != nil || errUser != nil || ws == uuid.Nil || user == uuid.Nil {
			response.RespondError(c, http.StatusUnauthorized, "missing_identity", errMissingIdentity)
			c.Abort()
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{WorkspaceID: ws, UserID: user})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type identityError struct{}

func (identityError) Error() string {
	return HeaderWorkspaceID + " and " + HeaderUserID + " headers are required"
}

var errMissingIdentity error = identityError{}
