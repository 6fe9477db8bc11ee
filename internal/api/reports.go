package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/najdeno/internal/cache"
	"github.com/erazemk/najdeno/internal/donation"
	"github.com/erazemk/najdeno/internal/lifecycle"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// MatchSnapshots serves the last published sweep result.
type MatchSnapshots interface {
	Latest(ctx context.Context) (*cache.Snapshot, error)
}

// ReportsHandler serves dashboard, match, donation, and people listings.
type ReportsHandler struct {
	DB      *sql.DB
	Service *lifecycle.Service
	Scanner *donation.Scanner

	// Snapshots, when set, is read before the database for GET /api/matches.
	Snapshots MatchSnapshots
}

// Stats handles GET /api/stats.
func (h *ReportsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.DashboardStats(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// Matches handles GET /api/matches: candidates grouped by lost item ID.
func (h *ReportsHandler) Matches(w http.ResponseWriter, r *http.Request) {
	if h.Snapshots != nil {
		snap, err := h.Snapshots.Latest(r.Context())
		if err != nil {
			slog.Warn("cached matches unavailable, reading database", "error", err)
		} else if snap != nil {
			jsonResponse(w, http.StatusOK, snap.Candidates)
			return
		}
	}

	matches, err := store.ListMatches(r.Context(), h.DB, 0)
	if err != nil {
		slog.Error("failed to list matches", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	grouped := make(map[int64][]model.MatchCandidate)
	for _, m := range matches {
		grouped[m.LostItemID] = append(grouped[m.LostItemID], m)
	}
	jsonResponse(w, http.StatusOK, grouped)
}

// Jobs handles GET /api/jobs: the last successful run of each background job.
func (h *ReportsHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	runs, err := store.JobRuns(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list job runs", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list job runs")
		return
	}
	jsonResponse(w, http.StatusOK, runs)
}

// EligibleDonations handles GET /api/donations/eligible.
func (h *ReportsHandler) EligibleDonations(w http.ResponseWriter, r *http.Request) {
	items, err := h.Scanner.EligibleItems(r.Context())
	if err != nil {
		slog.Error("failed to list eligible donations", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// RunDonations handles POST /api/donations/run: an immediate scan outside the
// schedule.
func (h *ReportsHandler) RunDonations(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scanner.Run(r.Context())
	if err != nil {
		slog.Error("donation scan failed", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}

	slog.Info("donation scan triggered", "user", actor(r).Username, "donated", res.Donated)
	jsonResponse(w, http.StatusOK, res)
}

// People handles GET /api/people.
func (h *ReportsHandler) People(w http.ResponseWriter, r *http.Request) {
	personType := r.URL.Query().Get("type")
	switch personType {
	case "", model.PersonTypeStudent, model.PersonTypeFaculty, model.PersonTypeStaff, model.PersonTypeVisitor:
	default:
		jsonError(w, http.StatusBadRequest, "invalid person type")
		return
	}

	people, err := store.ListPeople(r.Context(), h.DB, personType)
	if err != nil {
		slog.Error("failed to list people", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list people")
		return
	}
	if people == nil {
		people = []model.Person{}
	}
	jsonResponse(w, http.StatusOK, people)
}
