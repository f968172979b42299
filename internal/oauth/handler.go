package oauth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimtool/scimtool/internal/common/middleware"
)

// Handler exposes the token endpoint
type Handler struct {
	tokens *TokenService
	logger *zap.Logger
}

// NewHandler creates a new OAuth handler
func NewHandler(tokens *TokenService, logger *zap.Logger) *Handler {
	return &Handler{tokens: tokens, logger: logger}
}

// RegisterRoutes registers the token endpoint with the Gin router
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/oauth/token", h.Token)
}

// tokenRequest carries the client-credentials grant parameters. Entra posts
// form-encoded bodies; JSON is accepted for manual testing.
type tokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	ClientID     string `form:"client_id" json:"client_id"`
	ClientSecret string `form:"client_secret" json:"client_secret"`
}

// Token handles POST /oauth/token (RFC 6749 Section 4.4)
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	contentType := c.ContentType()
	var err error
	if strings.Contains(contentType, "application/json") {
		err = c.ShouldBindJSON(&req)
	} else {
		err = c.ShouldBind(&req)
	}
	if err != nil {
		h.writeError(c, ErrInvalidRequest("Malformed token request body"))
		return
	}

	// Client credentials may also arrive via HTTP Basic auth
	if req.ClientID == "" {
		if id, secret, ok := c.Request.BasicAuth(); ok {
			req.ClientID = id
			req.ClientSecret = secret
		}
	}

	if req.GrantType != "client_credentials" {
		h.writeError(c, ErrUnsupportedGrantType(req.GrantType))
		return
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		h.writeError(c, ErrInvalidRequest("client_id and client_secret are required"))
		return
	}

	resp, err := h.tokens.Issue(req.ClientID, req.ClientSecret)
	if err != nil {
		if tokenErr, ok := err.(*TokenError); ok {
			h.writeError(c, tokenErr)
			return
		}
		h.logger.Error("Token issuance failed", zap.Error(err))
		middleware.TokenOperationsTotal.WithLabelValues("issue", "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	middleware.TokenOperationsTotal.WithLabelValues("issue", "success").Inc()
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) writeError(c *gin.Context, err *TokenError) {
	middleware.TokenOperationsTotal.WithLabelValues("issue", err.Code).Inc()
	if err.statusCode == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Basic realm="oauth"`)
	}
	c.JSON(err.statusCode, err)
}
