package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/constituents/internal/auth"
	"github.com/JonMunkholm/constituents/internal/logging"
	webmw "github.com/JonMunkholm/constituents/internal/web/middleware"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type sessionResponse struct {
	Message string   `json:"message"`
	User    userView `json:"user"`
	Token   string   `json:"token"`
}

// handleRegister creates an account and starts a session for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid JSON body")
		return
	}

	user, err := s.users.Register(body.Username, body.Password)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusBadRequest, codeUserExists, "Username already exists")
		return
	case errors.Is(err, auth.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Sprintf("Username must be at least %d characters", auth.MinUsernameLength))
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
		return
	case err != nil:
		respondError(w, r, err)
		return
	}

	token, err := s.startSession(w, user)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("user registered", "user_id", user.ID)
	writeJSONStatus(w, http.StatusCreated, sessionResponse{
		Message: "User registered and logged in successfully",
		User:    userView{ID: user.ID, Username: user.Username},
		Token:   token,
	})
}

// handleLogin checks credentials and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid JSON body")
		return
	}

	user, err := s.users.Authenticate(body.Username, body.Password)
	if err != nil {
		logging.FromContext(r.Context()).Warn("login failed", "ip", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid username or password")
		return
	}

	token, err := s.startSession(w, user)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, sessionResponse{
		Message: "Logged in successfully",
		User:    userView{ID: user.ID, Username: user.Username},
		Token:   token,
	})
}

// handleLogout revokes the current session, if any, and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if raw := webmw.TokenFromRequest(r); raw != "" {
		s.tokens.Revoke(raw)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Security.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, map[string]string{"message": "Logged out successfully"})
}

// handleCheckAuth reports whether the request carries a valid session.
func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	raw := webmw.TokenFromRequest(r)
	if raw == "" {
		writeJSON(w, map[string]any{"isAuthenticated": false})
		return
	}
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		writeJSON(w, map[string]any{"isAuthenticated": false})
		return
	}
	writeJSON(w, map[string]any{
		"isAuthenticated": true,
		"user":            userView{ID: claims.Subject, Username: claims.Username},
	})
}

// handleProfile returns the account behind the session.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	user, ok := s.users.Get(claims.Subject)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, user)
}

// startSession issues a token for user and sets the session cookie.
func (s *Server) startSession(w http.ResponseWriter, user auth.User) (string, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Security.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}
