package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"aegisid.org/internal/auth"
	"aegisid.org/internal/ids"
)

// Product is a demo protected resource. The catalog lives in memory; the
// point of the endpoints is exercising per-method permission checks.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PriceCent int64     `json:"price_cents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type activityEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
}

const activityCap = 256

type productCatalog struct {
	mu       sync.Mutex
	products map[string]*Product
	activity []activityEntry
}

func newProductCatalog() *productCatalog {
	return &productCatalog{products: make(map[string]*Product)}
}

func (c *productCatalog) record(actor, action, target string) {
	c.activity = append(c.activity, activityEntry{
		At:     time.Now().UTC(),
		Actor:  actor,
		Action: action,
		Target: target,
	})
	if len(c.activity) > activityCap {
		c.activity = c.activity[len(c.activity)-activityCap:]
	}
}

// requirePerm enforces a single permission on an already authenticated
// principal. Route-level requireAny admits the broad set; the handler narrows
// it per method.
func requirePerm(w http.ResponseWriter, r *http.Request, perm auth.Permission) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return auth.Principal{}, false
	}
	if !principal.HasAnyPermission(perm) {
		handleAuthError(w, r, auth.ErrForbidden)
		return auth.Principal{}, false
	}
	return principal, true
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requirePerm(w, r, auth.PermissionRead); !ok {
			return
		}
		// Copy under the lock; the encoder must never see a live map entry.
		a.products.mu.Lock()
		list := make([]Product, 0, len(a.products.products))
		for _, p := range a.products.products {
			list = append(list, *p)
		}
		a.products.mu.Unlock()
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		writeJSON(w, http.StatusOK, map[string]any{"products": list})

	case http.MethodPost:
		principal, ok := requirePerm(w, r, auth.PermissionWrite)
		if !ok {
			return
		}
		var req struct {
			Name      string `json:"name"`
			PriceCent int64  `json:"price_cents"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.PriceCent < 0 {
			writeError(w, r, http.StatusBadRequest, "name and a non-negative price are required")
			return
		}
		now := time.Now().UTC()
		p := &Product{ID: ids.New(), Name: req.Name, PriceCent: req.PriceCent, CreatedAt: now, UpdatedAt: now}
		a.products.mu.Lock()
		a.products.products[p.ID] = p
		a.products.record(principal.UserID, "product.create", p.ID)
		out := *p
		a.products.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"product": out})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/products/")
	if id == "" || strings.Contains(id, "/") || !ids.IsValid(id) {
		writeError(w, r, http.StatusNotFound, "product not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		principal, ok := requirePerm(w, r, auth.PermissionUpdate)
		if !ok {
			return
		}
		var req struct {
			Name      string `json:"name"`
			PriceCent int64  `json:"price_cents"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var out Product
		a.products.mu.Lock()
		p, found := a.products.products[id]
		if found {
			if name := strings.TrimSpace(req.Name); name != "" {
				p.Name = name
			}
			if req.PriceCent >= 0 {
				p.PriceCent = req.PriceCent
			}
			p.UpdatedAt = time.Now().UTC()
			a.products.record(principal.UserID, "product.update", id)
			out = *p
		}
		a.products.mu.Unlock()
		if !found {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": out})

	case http.MethodDelete:
		principal, ok := requirePerm(w, r, auth.PermissionDelete)
		if !ok {
			return
		}
		a.products.mu.Lock()
		_, found := a.products.products[id]
		if found {
			delete(a.products.products, id)
			a.products.record(principal.UserID, "product.delete", id)
		}
		a.products.mu.Unlock()
		if !found {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})

	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.products.mu.Lock()
	entries := make([]activityEntry, len(a.products.activity))
	copy(entries, a.products.activity)
	a.products.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleUserLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.admin == nil {
		writeError(w, r, http.StatusNotImplemented, "user management is disabled")
		return
	}

	var (
		user *auth.User
		err  error
	)
	switch {
	case r.URL.Query().Get("username") != "":
		user, err = a.admin.FindByUsername(r.Context(), r.URL.Query().Get("username"))
	case r.URL.Query().Get("id") != "":
		user, err = a.admin.FindByID(r.Context(), r.URL.Query().Get("id"))
	default:
		writeError(w, r, http.StatusBadRequest, "username or id query parameter is required")
		return
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserPayload(user)})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.admin == nil {
		writeError(w, r, http.StatusNotImplemented, "role management is disabled")
		return
	}
	var req struct {
		Name        string            `json:"name"`
		Permissions []auth.Permission `json:"permissions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "role name is required")
		return
	}
	for _, p := range req.Permissions {
		if !p.Valid() {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown permission %q", p))
			return
		}
	}
	now := time.Now().UTC()
	role := &auth.Role{
		ID:          ids.New(),
		Name:        req.Name,
		Permissions: req.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.admin.CreateRole(r.Context(), role); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"role": role})
}
