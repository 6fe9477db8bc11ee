package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/najdeno/internal/donation"
	"github.com/erazemk/najdeno/internal/lifecycle"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// NewRouter creates the API router with all endpoints registered. svc is
// the state machine shared with the background jobs. snapshots may be nil, in
// which case matches are read from the database only.
func NewRouter(db *sql.DB, jwtSecret string, svc *lifecycle.Service, snapshots MatchSnapshots) http.Handler {
	mux := http.NewServeMux()

	st := store.New(db)
	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	itemsHandler := &ItemsHandler{DB: db, Service: svc}
	reportsHandler := &ReportsHandler{
		DB:      db,
		Service: svc,
		Scanner: &donation.Scanner{Items: st, Lifecycle: svc, Now: func() time.Time { return svc.Now() }},

		Snapshots: snapshots,
	}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items: read and report (all roles), lifecycle changes (manager+).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items/missing", authMW(http.HandlerFunc(itemsHandler.ReportMissing)))
	mux.Handle("POST /api/items/found", authMW(http.HandlerFunc(itemsHandler.ReportFound)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Update))))
	mux.Handle("DELETE /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Delete))))
	mux.Handle("POST /api/items/{id}/transition", authMW(requireManager(http.HandlerFunc(itemsHandler.Transition))))
	mux.Handle("POST /api/items/{id}/restore", authMW(requireManager(http.HandlerFunc(itemsHandler.Restore))))
	mux.Handle("GET /api/items/{id}/history", authMW(http.HandlerFunc(itemsHandler.GetHistory)))
	mux.Handle("GET /api/items/{id}/matches", authMW(http.HandlerFunc(itemsHandler.GetMatches)))

	// Reports (all roles); manual donation scan (admin).
	mux.Handle("GET /api/stats", authMW(http.HandlerFunc(reportsHandler.Stats)))
	mux.Handle("GET /api/matches", authMW(http.HandlerFunc(reportsHandler.Matches)))
	mux.Handle("GET /api/donations/eligible", authMW(http.HandlerFunc(reportsHandler.EligibleDonations)))
	mux.Handle("POST /api/donations/run", authMW(requireAdmin(http.HandlerFunc(reportsHandler.RunDonations))))
	mux.Handle("GET /api/people", authMW(http.HandlerFunc(reportsHandler.People)))
	mux.Handle("GET /api/jobs", authMW(requireManager(http.HandlerFunc(reportsHandler.Jobs))))

	return mux
}
