package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"

	"spottransfer/internal/shared"
)

// youtubeScope grants playlist creation and mutation on the user's account.
const youtubeScope = "https://www.googleapis.com/auth/youtube.force-ssl"

// callbackPage closes the OAuth popup and hands the handshake state back to
// the opener window. Without an opener it falls back to a full-page redirect.
const callbackPage = `<!DOCTYPE html>
<html>
<head><title>Authentication Complete</title></head>
<body>
<p>Authentication complete. You can close this window.</p>
<script>
if (window.opener) {
  window.opener.postMessage({type: "auth_complete", state: %q}, window.location.origin);
  window.close();
} else {
  window.location = "/";
}
</script>
</body>
</html>`

// handleAuthorize starts the OAuth handshake. The anti-forgery state is kept
// both in the session and in the cache so the popup callback can be completed
// from a browser context that did not carry the session cookie.
func (s *Server) handleAuthorize(c *fiber.Ctx) error {
	if s.oauth.ClientID == "" || s.oauth.ClientSecret == "" {
		s.logger.Error("authorize requested without OAuth client configuration")
		return jsonError(c, fiber.StatusInternalServerError,
			"Failed to start authentication. Please try again.")
	}

	sess, err := s.sessions.Get(c)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError,
			"Failed to start authentication. Please try again.")
	}

	state := shared.GenerateID()
	sess.Set(oauthStateKey, state)
	if err := sess.Save(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError,
			"Failed to start authentication. Please try again.")
	}
	s.cache.SetOAuthState(state, sess.ID())

	url := s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	return c.Redirect(url, fiber.StatusFound)
}

// handleOAuthCallback finishes the code exchange. Credentials are parked in
// the cache keyed by state; the opener window binds them to its own session
// through /complete_auth.
func (s *Server) handleOAuthCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" || !s.stateValid(c, state) {
		return c.Status(fiber.StatusBadRequest).
			SendString("Invalid OAuth state. Please try authenticating again.")
	}

	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).
			SendString("Authorization was denied or cancelled.")
	}

	token, err := s.oauth.Exchange(c.UserContext(), code)
	if err != nil {
		s.logger.Error("token exchange failed", "error", err)
		s.clearSession(c)
		return c.Status(fiber.StatusInternalServerError).
			SendString("Authentication failed. Please try again.")
	}

	creds := &Credentials{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     s.oauth.Endpoint.TokenURL,
		ClientID:     s.oauth.ClientID,
		ClientSecret: s.oauth.ClientSecret,
		Scopes:       s.oauth.Scopes,
	}
	s.cache.SetPendingCredentials(state, creds)
	s.cache.DeleteOAuthState(state)

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(fmt.Sprintf(callbackPage, state))
}

// stateValid accepts a state that matches the callback request's own session
// or one parked in the cache by another session's /authorize.
func (s *Server) stateValid(c *fiber.Ctx, state string) bool {
	if sess, err := s.sessions.Get(c); err == nil {
		if stored, ok := sess.Get(oauthStateKey).(string); ok && stored == state {
			return true
		}
	}
	_, ok := s.cache.GetOAuthState(state)
	return ok
}

type completeAuthRequest struct {
	State string `json:"state" validate:"required,max=200"`
}

// handleCompleteAuth binds cache-parked credentials to the caller's session.
// The popup flow posts here from the opener window once the callback page
// signals completion.
func (s *Server) handleCompleteAuth(c *fiber.Ctx) error {
	var req completeAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "error": "Invalid request format"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "error": "Missing authentication state"})
	}

	var creds Credentials
	if !s.cache.GetPendingCredentials(req.State, &creds) || !creds.Valid() {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "error": "Authentication expired or not found. Please try again."})
	}

	if err := s.bindCredentials(c, &creds); err != nil {
		s.logger.Error("failed to bind credentials", "error", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"success": false, "error": "Failed to complete authentication"})
	}
	s.cache.DeletePendingCredentials(req.State)

	s.logger.Info("authentication completed")
	return c.JSON(fiber.Map{"success": true})
}

// handleDisconnect drops the session and its credentials.
func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	s.clearSession(c)
	return c.Redirect("/", fiber.StatusFound)
}
