package web

import (
	"net/http"

	platformauth "github.com/focus-todo/project/internal/platform/auth"
)

const authFailedMessage = "Authentication failed. Please try again."

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := h.NewState()
	h.Sessions.SetState(w, state)
	http.Redirect(w, r, h.Provider.AuthCodeURL(state), http.StatusFound)
}

// handleAuthorize completes the provider round trip. Provider failures are
// logged in full and answered with a generic 500.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expected := h.Sessions.TakeState(w, r)
	if expected == "" || q.Get("state") != expected {
		h.writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	if providerErr := q.Get("error"); providerErr != "" {
		h.Logger.Error("identity provider returned an error", "error", providerErr, "description", q.Get("error_description"))
		http.Error(w, authFailedMessage, http.StatusInternalServerError)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	id, err := h.Provider.Exchange(r.Context(), code)
	if err != nil {
		h.Logger.Error("oauth exchange failed", "err", err)
		http.Error(w, authFailedMessage, http.StatusInternalServerError)
		return
	}

	if err := h.Sessions.SetSession(w, platformauth.Claims{Subject: id.Subject, Name: id.Name, Email: id.Email}); err != nil {
		h.Logger.Error("issue session", "err", err)
		http.Error(w, authFailedMessage, http.StatusInternalServerError)
		return
	}
	h.Logger.Info("user signed in", "subject", id.Subject)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.ClearSession(w)
	http.Redirect(w, r, "/", http.StatusFound)
}
