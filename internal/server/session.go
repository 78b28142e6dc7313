package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"

	"spottransfer/internal/shared"
)

const (
	// SessionCookie is the session cookie name.
	SessionCookie = "spottransfer_session"

	credentialsKey = "credentials"
	oauthStateKey  = "oauth_state"
)

// Credentials is the destination-service OAuth credential set held in the
// user's session between requests, serialized as the token exchange payload.
type Credentials struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
}

// Valid reports whether the credential set can authenticate a request.
func (cr *Credentials) Valid() bool {
	return cr != nil && cr.Token != ""
}

// Client returns an HTTP client carrying the credential, refreshing the
// access token through the stored token endpoint when needed.
func (cr *Credentials) Client(ctx context.Context) *http.Client {
	conf := &oauth2.Config{
		ClientID:     cr.ClientID,
		ClientSecret: cr.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cr.TokenURI},
		Scopes:       cr.Scopes,
	}
	token := &oauth2.Token{AccessToken: cr.Token, RefreshToken: cr.RefreshToken}
	return conf.Client(ctx, token)
}

// credentials loads the credential set from the request's session.
//
// A missing credential is [shared.ErrNotAuthenticated]. An undecodable one is
// [shared.ErrSessionCorrupted]: the session is wiped so the user starts over.
func (s *Server) credentials(c *fiber.Ctx) (*Credentials, error) {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSessionCorrupted, err)
	}

	raw := sess.Get(credentialsKey)
	if raw == nil {
		return nil, shared.ErrNotAuthenticated
	}

	encoded, ok := raw.(string)
	if !ok {
		sess.Destroy()
		return nil, fmt.Errorf("%w: unexpected credential payload", shared.ErrSessionCorrupted)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(encoded), &creds); err != nil {
		sess.Destroy()
		return nil, fmt.Errorf("%w: %v", shared.ErrSessionCorrupted, err)
	}

	if !creds.Valid() {
		return nil, shared.ErrNotAuthenticated
	}
	return &creds, nil
}

// bindCredentials stores a credential set in the request's session, dropping
// any leftover handshake state.
func (s *Server) bindCredentials(c *fiber.Ctx, creds *Credentials) error {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSessionCorrupted, err)
	}

	encoded, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	sess.Delete(oauthStateKey)
	sess.Set(credentialsKey, string(encoded))
	if err := sess.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// clearSession destroys the request's session, ignoring storage errors.
func (s *Server) clearSession(c *fiber.Ctx) {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return
	}
	if err := sess.Destroy(); err != nil {
		s.logger.Debug("session destroy failed", "error", err)
	}
}
