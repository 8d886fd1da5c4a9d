package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"aegisid.org/internal/auth"
	"aegisid.org/internal/obs"
)

const serviceName = "aegis-api"

// ReadyProbe reports readiness, e.g. by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// AdminStore is the slice of auth.Store the management endpoints need.
type AdminStore interface {
	CreateRole(ctx context.Context, r *auth.Role) error
	FindByID(ctx context.Context, id string) (*auth.User, error)
	FindByUsername(ctx context.Context, username string) (*auth.User, error)
}

// API is the HTTP layer. Credential endpoints carry a stricter per-IP rate
// limit than the rest of the surface.
type API struct {
	mux      *http.ServeMux
	svc      *auth.Service
	guard    *auth.Guard
	admin    AdminStore
	probe    ReadyProbe
	version  string
	products *productCatalog
}

// New wires routes. svc and guard are required; admin may be nil, disabling
// the management endpoints.
func New(svc *auth.Service, guard *auth.Guard, admin AdminStore, probe ReadyProbe, version string) *API {
	a := &API{
		mux:      http.NewServeMux(),
		svc:      svc,
		guard:    guard,
		admin:    admin,
		probe:    probe,
		version:  version,
		products: newProductCatalog(),
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// Credential endpoints: tighter rate limit, no auth required.
	credential := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, 10, 5)
	}
	a.mux.Handle("/v1/auth/register", credential(a.handleRegister))
	a.mux.Handle("/v1/auth/login", credential(a.handleLogin))
	a.mux.Handle("/v1/auth/refresh", credential(a.handleRefresh))
	a.mux.Handle("/v1/auth/password/change", credential(a.handleChangePassword))
	a.mux.Handle("/v1/auth/password/forgot", credential(a.handleForgotPassword))
	a.mux.Handle("/v1/auth/password/reset", credential(a.handleResetPassword))

	a.mux.HandleFunc("/v1/me", a.handleMe)

	// Protected resources exercising the permission guard.
	a.mux.Handle("/v1/products", a.requireAny(http.HandlerFunc(a.handleProducts),
		auth.PermissionRead, auth.PermissionWrite))
	a.mux.Handle("/v1/products/", a.requireAny(http.HandlerFunc(a.handleProductByID),
		auth.PermissionUpdate, auth.PermissionDelete))
	a.mux.Handle("/v1/logs", a.requireAny(http.HandlerFunc(a.handleLogs),
		auth.PermissionViewLogs))
	a.mux.Handle("/v1/roles", a.requireAny(http.HandlerFunc(a.handleCreateRole),
		auth.PermissionManageUsers))
	a.mux.Handle("/v1/users", a.requireAny(http.HandlerFunc(a.handleUserLookup),
		auth.PermissionManageUsers))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = SecurityHeaders(h)
	h = MaxBodyBytes(h, 1<<20)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health / info ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
