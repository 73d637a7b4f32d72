package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/oprema/internal/authz"
	"github.com/erazemk/oprema/internal/docstore"
	"github.com/erazemk/oprema/internal/events"
	"github.com/erazemk/oprema/internal/hierarchy"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/transfer"
)

// Deps are the services the API is built on. Events and Metrics are optional.
type Deps struct {
	DB        *sql.DB
	Docs      docstore.Store
	JWTSecret string
	Hierarchy *hierarchy.Resolver
	Authz     *authz.Resolver
	Transfers *transfer.Engine
	Events    *events.Hub
	Metrics   *metrics.Metrics
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, Docs: d.Docs, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB, Docs: d.Docs, Authz: d.Authz}
	unitsHandler := &UnitsHandler{Docs: d.Docs, Authz: d.Authz, Hierarchy: d.Hierarchy}
	personnelHandler := &PersonnelHandler{Docs: d.Docs, Authz: d.Authz}
	equipmentHandler := &EquipmentHandler{DB: d.DB, Docs: d.Docs}
	transfersHandler := &TransfersHandler{Engine: d.Transfers, Authz: d.Authz}

	authMW := AuthMiddleware(d.JWTSecret, d.DB, d.Docs)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireLeader := RequireRole(model.RoleLeader)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("GET /api/auth/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users and leader scopes (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))
	mux.Handle("GET /api/users/{id}/leader-scopes", authMW(requireAdmin(http.HandlerFunc(usersHandler.ListScopes))))
	mux.Handle("POST /api/users/{id}/leader-scopes", authMW(requireAdmin(http.HandlerFunc(usersHandler.GrantScope))))
	mux.Handle("DELETE /api/users/{id}/leader-scopes/{unitID}", authMW(requireAdmin(http.HandlerFunc(usersHandler.RevokeScope))))

	// Units: read (all roles), structure (admin), edit (scoped leader).
	mux.Handle("GET /api/units", authMW(http.HandlerFunc(unitsHandler.List)))
	mux.Handle("POST /api/units", authMW(requireAdmin(http.HandlerFunc(unitsHandler.Create))))
	mux.Handle("GET /api/units/{id}", authMW(http.HandlerFunc(unitsHandler.Get)))
	mux.Handle("PUT /api/units/{id}", authMW(requireLeader(http.HandlerFunc(unitsHandler.Update))))
	mux.Handle("DELETE /api/units/{id}", authMW(requireAdmin(http.HandlerFunc(unitsHandler.Delete))))
	mux.Handle("GET /api/units/{id}/children", authMW(http.HandlerFunc(unitsHandler.Children)))
	mux.Handle("GET /api/units/{id}/ancestors", authMW(http.HandlerFunc(unitsHandler.Ancestors)))
	mux.Handle("GET /api/units/{id}/holdings", authMW(http.HandlerFunc(unitsHandler.Holdings)))

	// Personnel: read (all roles), write (scoped leader), delete (admin).
	mux.Handle("GET /api/personnel", authMW(http.HandlerFunc(personnelHandler.List)))
	mux.Handle("POST /api/personnel", authMW(requireLeader(http.HandlerFunc(personnelHandler.Create))))
	mux.Handle("GET /api/personnel/{id}", authMW(http.HandlerFunc(personnelHandler.Get)))
	mux.Handle("PUT /api/personnel/{id}", authMW(requireLeader(http.HandlerFunc(personnelHandler.Update))))
	mux.Handle("PUT /api/personnel/{id}/unit", authMW(requireLeader(http.HandlerFunc(personnelHandler.Move))))
	mux.Handle("DELETE /api/personnel/{id}", authMW(requireAdmin(http.HandlerFunc(personnelHandler.Delete))))
	mux.Handle("GET /api/personnel/{id}/holdings", authMW(http.HandlerFunc(personnelHandler.Holdings)))

	// Equipment: read (all roles), write (leader+), delete (admin).
	mux.Handle("GET /api/equipment", authMW(http.HandlerFunc(equipmentHandler.List)))
	mux.Handle("POST /api/equipment", authMW(requireLeader(http.HandlerFunc(equipmentHandler.Create))))
	mux.Handle("GET /api/equipment/{id}", authMW(http.HandlerFunc(equipmentHandler.Get)))
	mux.Handle("PUT /api/equipment/{id}", authMW(requireLeader(http.HandlerFunc(equipmentHandler.Update))))
	mux.Handle("DELETE /api/equipment/{id}", authMW(requireAdmin(http.HandlerFunc(equipmentHandler.Delete))))
	mux.Handle("GET /api/equipment/{id}/custody", authMW(http.HandlerFunc(equipmentHandler.Custody)))
	mux.Handle("PUT /api/equipment/{id}/photo", authMW(requireLeader(http.HandlerFunc(equipmentHandler.UploadPhoto))))
	mux.Handle("GET /api/equipment/{id}/photo", authMW(http.HandlerFunc(equipmentHandler.GetPhoto)))

	// Transfers (all roles; processing is authorized per request).
	mux.Handle("POST /api/can-manage", authMW(http.HandlerFunc(transfersHandler.CanManage)))
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("GET /api/transfers", authMW(http.HandlerFunc(transfersHandler.List)))
	mux.Handle("GET /api/transfers/incoming", authMW(http.HandlerFunc(transfersHandler.Incoming)))
	mux.Handle("GET /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Get)))
	mux.Handle("POST /api/transfers/{id}/process", authMW(http.HandlerFunc(transfersHandler.Process)))
	mux.Handle("POST /api/transfers/{id}/confirm", authMW(http.HandlerFunc(transfersHandler.Confirm)))

	if d.Events != nil {
		mux.Handle("GET /api/events", authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d.Events.Serve(w, r, GetPrincipal(r.Context()))
		})))
	}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	return mux
}
