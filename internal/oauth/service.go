// Package oauth implements the OAuth2 client-credentials token issuer and the
// bearer authentication guard for the SCIM endpoint.
package oauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Client is a registered OAuth client. SecretHash is a bcrypt hash; plaintext
// secrets are never held after configuration load.
type Client struct {
	ID         string
	SecretHash string
	Scopes     []string
}

// ClientRegistry resolves client ids to registered clients
type ClientRegistry interface {
	ResolveClient(clientID string) (*Client, bool)
}

// StaticRegistry is a ClientRegistry backed by configuration
type StaticRegistry map[string]*Client

// NewStaticRegistry builds a registry from configured clients
func NewStaticRegistry(clients []Client) StaticRegistry {
	reg := make(StaticRegistry, len(clients))
	for i := range clients {
		client := clients[i]
		reg[client.ID] = &client
	}
	return reg
}

// ResolveClient implements ClientRegistry
func (r StaticRegistry) ResolveClient(clientID string) (*Client, bool) {
	client, ok := r[clientID]
	return client, ok
}

// TokenResponse is the RFC 6749 token endpoint success body
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// TokenService issues and validates bearer tokens for the SCIM endpoint
type TokenService struct {
	registry ClientRegistry
	secret   []byte
	issuer   string
	ttl      time.Duration
	logger   *zap.Logger

	now func() time.Time
}

// NewTokenService creates a token service. ttl defaults to one hour.
func NewTokenService(registry ClientRegistry, jwtSecret, issuer string, ttl time.Duration, logger *zap.Logger) *TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{
		registry: registry,
		secret:   []byte(jwtSecret),
		issuer:   issuer,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue performs the client-credentials grant and returns a signed JWT
func (s *TokenService) Issue(clientID, clientSecret string) (*TokenResponse, error) {
	client, ok := s.registry.ResolveClient(clientID)
	if ok {
		if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
			ok = false
		}
	}
	if !ok {
		s.logger.Warn("Token request with invalid client credentials",
			zap.String("client_id", clientID))
		return nil, ErrInvalidClient()
	}

	now := s.now().UTC()
	scope := strings.Join(client.Scopes, " ")
	claims := jwt.MapClaims{
		"sub":       client.ID,
		"client_id": client.ID,
		"iss":       s.issuer,
		"iat":       now.Unix(),
		"exp":       now.Add(s.ttl).Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.logger.Info("Access token issued",
		zap.String("client_id", client.ID),
		zap.Duration("ttl", s.ttl))

	return &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.ttl.Seconds()),
		Scope:       scope,
	}, nil
}

// TokenInfo is the validated identity carried by a bearer JWT
type TokenInfo struct {
	ClientID string
	Scope    string
}

// Validate parses and verifies a bearer JWT issued by this service
func (s *TokenService) Validate(tokenString string) (*TokenInfo, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	info := &TokenInfo{}
	if clientID, ok := claims["client_id"].(string); ok {
		info.ClientID = clientID
	}
	if scope, ok := claims["scope"].(string); ok {
		info.Scope = scope
	}
	return info, nil
}
