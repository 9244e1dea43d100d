package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taskdeck.io/internal/audit"
	"taskdeck.io/internal/auth"
	"taskdeck.io/internal/validate"
)

type signupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type profileResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type accountStatusRequest struct {
	Locked  *bool `json:"locked"`
	Enabled *bool `json:"enabled"`
}

type accountStatusResponse struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Locked  bool      `json:"locked"`
	Enabled bool      `json:"enabled"`
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	err := a.auth.Register(r.Context(), auth.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventSignup, map[string]any{
		"username": strings.TrimSpace(req.Username),
	})
	w.WriteHeader(http.StatusCreated)
}

func (a *API) signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	sess, err := a.auth.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), audit.EventSigninFailed, map[string]any{
				"remote_ip": clientIP(r),
			})
		}
		writeDomainError(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), sess.Principal)
	annotateAccount(ctx, sess.Principal.AccountID)
	_ = audit.LogEvent(ctx, audit.EventSignin, map[string]any{
		"refresh_token_id": sess.Refresh.Record.ID,
	})
	a.writeSession(w, sess)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	raw := a.cookie.read(r)
	if raw == "" {
		writeDomainError(w, r, auth.ErrInvalidRefreshToken)
		return
	}
	sess, err := a.auth.RefreshAccessToken(r.Context(), raw)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			a.cookie.clear(w)
		}
		writeDomainError(w, r, err)
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), sess.Principal)
	annotateAccount(ctx, sess.Principal.AccountID)
	_ = audit.LogEvent(ctx, audit.EventRefresh, map[string]any{
		"refresh_token_id": sess.Refresh.Record.ID,
	})
	a.writeSession(w, sess)
}

func (a *API) writeSession(w http.ResponseWriter, sess auth.Session) {
	a.cookie.set(w, sess.Refresh.Raw)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, accessTokenResponse{AccessToken: sess.AccessToken})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	raw := a.cookie.read(r)
	if raw == "" {
		a.cookie.clear(w)
		writeDomainError(w, r, auth.ErrInvalidRefreshToken)
		return
	}
	accountID, err := a.auth.LogoutUser(r.Context(), raw)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			a.cookie.clear(w)
		}
		writeDomainError(w, r, err)
		return
	}
	annotateAccount(r.Context(), accountID)
	_ = audit.LogEvent(r.Context(), audit.EventLogout, map[string]any{
		"account_id": accountID.String(),
	})
	a.cookie.clear(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out successfully"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	view, err := a.auth.Profile(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{ID: view.ID, Username: view.Username, Email: view.Email})
}

func (a *API) setAccountStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		notFound(w, r)
		return
	}
	var req accountStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.Locked == nil && req.Enabled == nil {
		writeDomainError(w, r, validate.Errors{"body": "locked or enabled is required"})
		return
	}
	acct, err := a.auth.SetAccountStatus(r.Context(), id, auth.StatusChange{Locked: req.Locked, Enabled: req.Enabled})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAccountStatus, map[string]any{
		"target_account_id": acct.ID.String(),
		"locked":            acct.Locked,
		"enabled":           acct.Enabled,
	})
	writeJSON(w, http.StatusOK, accountStatusResponse{
		ID:      acct.ID,
		Email:   acct.Email,
		Locked:  acct.Locked,
		Enabled: acct.Enabled,
	})
}
