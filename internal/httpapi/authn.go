package httpapi

import (
	"errors"
	"net/http"

	"aegisid.org/internal/auth"
	"aegisid.org/internal/obs"
)

// requireAny admits the request if the caller holds at least one of the
// listed permissions. The resolved principal is placed on the context.
func (a *API) requireAny(next http.Handler, required ...auth.Permission) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.guard.Check(r.Context(), r.Header.Get("Authorization"), required...)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the caller's identity without a permission check.
// Used by endpoints any signed-in user may call, roles or not.
func (a *API) authenticate(r *http.Request) (*auth.User, []auth.RoleClaim, error) {
	token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, nil, err
	}
	return a.svc.VerifyToken(r.Context(), token)
}

func isValidationError(err error) bool {
	return errors.Is(err, auth.ErrValidation)
}

// handleAuthError translates the auth error taxonomy into HTTP responses.
// Internal failures are logged and reported generically.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", `Bearer realm="aegis"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrRoleNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrDuplicateCredential):
		writeError(w, r, http.StatusConflict, "username or email already in use")
	case errors.Is(err, auth.ErrInvalidOldPassword):
		writeError(w, r, http.StatusBadRequest, "old password does not match")
	case errors.Is(err, auth.ErrInvalidResetToken):
		writeError(w, r, http.StatusBadRequest, "reset token is invalid or expired")
	case errors.Is(err, auth.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.LogEvent("error", "internal error", map[string]any{
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
