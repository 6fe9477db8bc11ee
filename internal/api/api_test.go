package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najdeno/internal/auth"
	"github.com/erazemk/najdeno/internal/cache"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/lifecycle"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	DB      *sql.DB
	Service *lifecycle.Service
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithSnapshots(t, nil)
}

func newTestServerWithSnapshots(t *testing.T, snapshots MatchSnapshots) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	st := store.New(database)
	svc := lifecycle.New(st, st)
	server := httptest.NewServer(NewRouter(database, testJWTSecret, svc, snapshots))
	t.Cleanup(server.Close)
	return &testServer{Server: server, DB: database, Service: svc}
}

// login creates a user with the given role and returns a token for it.
func (s *testServer) login(t *testing.T, username, role string) string {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateUser(context.Background(), s.DB, username, string(hash), role); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"username": username, "password": "password"})
	resp, err := http.Post(s.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp["token"] == "" {
		t.Fatal("empty token from login")
	}
	return loginResp["token"]
}

// do sends an authenticated JSON request and decodes the response into out
// when out is non-nil. It returns the status code.
func (s *testServer) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type itemResponse struct {
	ID             int64          `json:"id"`
	Code           string         `json:"item_id"`
	Status         string         `json:"status"`
	FoundLocation  string         `json:"found_location"`
	ClaimDate      *time.Time     `json:"claim_date"`
	DeletedAt      *time.Time     `json:"deleted_at"`
	Claimant       *model.Person  `json:"claimant"`
	AdditionalData map[string]any `json:"additional_data"`
}

var finder = map[string]any{"name": "Bor", "type": "staff", "employee_id": "E-12"}

func reportFound(t *testing.T, s *testServer, token string) itemResponse {
	t.Helper()
	var item itemResponse
	status := s.do(t, "POST", "/api/items/found", token, map[string]any{
		"category":       "electronics",
		"name":           "Phone",
		"color":          "Blue",
		"found_location": "Library",
		"finder":         finder,
	}, &item)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 for found report, got %d", status)
	}
	return item
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", model.RoleAdmin)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(s.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "clerk", model.RoleUser)

	if status := s.do(t, "POST", "/api/auth/logout", token, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 for logout, got %d", status)
	}
	if status := s.do(t, "GET", "/api/items", token, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", status)
	}
}

func TestItemLifecycleFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "manager", model.RoleManager)
	item := reportFound(t, s, token)

	if item.Status != "in_custody" || item.FoundLocation != "Library" || item.Code == "" {
		t.Fatalf("unexpected item %+v", item)
	}
	base := "/api/items/" + itoa(item.ID)

	// Claiming without a claimant is a validation error.
	status := s.do(t, "POST", base+"/transition", token, map[string]any{"status": "claimed"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for claim without claimant, got %d", status)
	}

	var claimed itemResponse
	status = s.do(t, "POST", base+"/transition", token, map[string]any{
		"status":   "claimed",
		"claimant": map[string]any{"name": "Ana", "type": "student", "student_id": "63200001"},
	}, &claimed)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for claim, got %d", status)
	}
	if claimed.Status != "claimed" || claimed.ClaimDate == nil || claimed.Claimant == nil {
		t.Errorf("unexpected claimed item %+v", claimed)
	}

	var deleted itemResponse
	if status := s.do(t, "DELETE", base+"?reason=duplicate", token, nil, &deleted); status != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d", status)
	}
	if deleted.Status != "deleted" || deleted.AdditionalData["previous_status"] != "claimed" {
		t.Errorf("unexpected deleted item %+v", deleted)
	}

	// A deleted item only leaves through restore.
	status = s.do(t, "POST", base+"/transition", token, map[string]any{"status": "donated"}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for transition out of deleted, got %d", status)
	}

	var restored itemResponse
	if status := s.do(t, "POST", base+"/restore", token, nil, &restored); status != http.StatusOK {
		t.Fatalf("expected 200 for restore, got %d", status)
	}
	if restored.Status != "claimed" || restored.DeletedAt != nil {
		t.Errorf("unexpected restored item %+v", restored)
	}
	if restored.AdditionalData["restored_by"] != "manager" {
		t.Errorf("expected restored_by manager, got %v", restored.AdditionalData)
	}

	if status := s.do(t, "POST", base+"/restore", token, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 restoring a live item, got %d", status)
	}

	var history []model.ItemEvent
	if status := s.do(t, "GET", base+"/history", token, nil, &history); status != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", status)
	}
	if len(history) != 4 {
		t.Errorf("expected 4 events, got %d", len(history))
	}
}

func TestReportMissingAndStats(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "clerk", model.RoleUser)

	status := s.do(t, "POST", "/api/items/missing", token, map[string]any{
		"category": "book",
		"name":     "Calculus",
		"location": "Library",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	if status := s.do(t, "POST", "/api/items/missing", token, map[string]any{"name": "x"}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 without category, got %d", status)
	}

	var stats lifecycle.Stats
	if status := s.do(t, "GET", "/api/stats", token, nil, &stats); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if stats.Missing != 1 || stats.Found != 0 {
		t.Errorf("expected 1 missing and 0 found, got %d/%d", stats.Missing, stats.Found)
	}

	var missing []itemResponse
	s.do(t, "GET", "/api/items?status=missing", token, nil, &missing)
	if len(missing) != 1 {
		t.Errorf("expected 1 missing item, got %d", len(missing))
	}
	if status := s.do(t, "GET", "/api/items?status=lost", token, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", status)
	}
}

func TestItemNotFound(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "manager", model.RoleManager)

	if status := s.do(t, "GET", "/api/items/999", token, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	if status := s.do(t, "POST", "/api/items/999/restore", token, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for restore, got %d", status)
	}
	if status := s.do(t, "GET", "/api/items/abc", token, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", status)
	}
}

func TestMatchesEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "clerk", model.RoleUser)
	found := reportFound(t, s, token)

	var lost itemResponse
	s.do(t, "POST", "/api/items/missing", token, map[string]any{
		"category": "electronics", "name": "My phone", "color": "Blue", "location": "Library",
	}, &lost)

	err := store.SaveMatches(context.Background(), s.DB, map[int64][]model.MatchCandidate{
		lost.ID: {{LostItemID: lost.ID, FoundItemID: found.ID, Score: 85}},
	}, time.Now())
	if err != nil {
		t.Fatalf("SaveMatches: %v", err)
	}

	var forItem []model.MatchCandidate
	if status := s.do(t, "GET", "/api/items/"+itoa(lost.ID)+"/matches", token, nil, &forItem); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(forItem) != 1 || forItem[0].FoundItemID != found.ID || forItem[0].FoundItemName != "Phone" {
		t.Errorf("unexpected matches %+v", forItem)
	}

	var all map[string][]model.MatchCandidate
	s.do(t, "GET", "/api/matches", token, nil, &all)
	if len(all[itoa(lost.ID)]) != 1 {
		t.Errorf("expected grouped matches for lost item, got %+v", all)
	}
}

func TestEligibleDonations(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", model.RoleAdmin)
	reportFound(t, s, token)

	var eligible []itemResponse
	s.do(t, "GET", "/api/donations/eligible", token, nil, &eligible)
	if len(eligible) != 0 {
		t.Fatalf("expected nothing eligible yet, got %d", len(eligible))
	}

	s.Service.Now = func() time.Time { return time.Now().UTC().AddDate(0, 0, 91) }
	s.do(t, "GET", "/api/donations/eligible", token, nil, &eligible)
	if len(eligible) != 1 {
		t.Fatalf("expected 1 eligible item, got %d", len(eligible))
	}

	var res struct {
		Donated int `json:"donated"`
	}
	if status := s.do(t, "POST", "/api/donations/run", token, nil, &res); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if res.Donated != 1 {
		t.Errorf("expected 1 donation, got %d", res.Donated)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	s := newTestServer(t)

	resp, _ := http.Get(s.URL + "/api/items")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	s := newTestServer(t)
	manager := s.login(t, "manager", model.RoleManager)
	item := reportFound(t, s, manager)

	userToken, _ := auth.GenerateToken(testJWTSecret, 2, "user1", model.RoleUser)

	// Regular users report and read but do not move items through the lifecycle.
	if status := s.do(t, "GET", "/api/items/"+itoa(item.ID), userToken, nil, nil); status != http.StatusOK {
		t.Errorf("expected 200 for user reading item, got %d", status)
	}
	status := s.do(t, "POST", "/api/items/"+itoa(item.ID)+"/transition", userToken, map[string]any{"status": "donated"}, nil)
	if status != http.StatusForbidden {
		t.Errorf("expected 403 for user transition, got %d", status)
	}
	if status := s.do(t, "DELETE", "/api/items/"+itoa(item.ID), userToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user delete, got %d", status)
	}
	if status := s.do(t, "GET", "/api/users", userToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", status)
	}
}

func TestCannotRemoveLastAdmin(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "root", model.RoleAdmin)

	var other model.User
	status := s.do(t, "POST", "/api/users", token, map[string]string{
		"username": "second", "password": "longenough", "role": model.RoleAdmin,
	}, &other)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	if status := s.do(t, "DELETE", "/api/users/"+itoa(other.ID), token, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 deleting second admin, got %d", status)
	}

	// root is now the only admin.
	self, _ := store.GetUserByUsername(context.Background(), s.DB, "root")
	status = s.do(t, "PUT", "/api/users/"+itoa(self.ID), token, map[string]string{"role": model.RoleUser}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 demoting last admin, got %d", status)
	}
}

func TestPeopleDirectory(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "clerk", model.RoleUser)
	reportFound(t, s, token)
	reportFound(t, s, token)

	var staff []model.Person
	if status := s.do(t, "GET", "/api/people?type=staff", token, nil, &staff); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(staff) != 1 || staff[0].EmployeeID != "E-12" {
		t.Errorf("expected one deduplicated staff finder, got %+v", staff)
	}

	if status := s.do(t, "GET", "/api/people?type=alien", token, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown person type, got %d", status)
	}
}

type fixedSnapshots struct {
	snap *cache.Snapshot
	err  error
}

func (f fixedSnapshots) Latest(context.Context) (*cache.Snapshot, error) {
	return f.snap, f.err
}

func TestMatchesServedFromSnapshot(t *testing.T) {
	snap := &cache.Snapshot{
		ComputedAt: time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC),
		Candidates: map[string][]model.MatchCandidate{
			"7": {{LostItemID: 7, FoundItemID: 9, Score: 60}},
		},
	}
	s := newTestServerWithSnapshots(t, fixedSnapshots{snap: snap})
	token := s.login(t, "clerk", model.RoleUser)

	var all map[string][]model.MatchCandidate
	if status := s.do(t, "GET", "/api/matches", token, nil, &all); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(all["7"]) != 1 || all["7"][0].FoundItemID != 9 {
		t.Errorf("expected cached candidates, got %+v", all)
	}
}

func TestMatchesFallBackToDatabase(t *testing.T) {
	tests := []struct {
		name      string
		snapshots fixedSnapshots
	}{
		{"nothing cached", fixedSnapshots{}},
		{"cache down", fixedSnapshots{err: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServerWithSnapshots(t, tt.snapshots)
			token := s.login(t, "clerk", model.RoleUser)
			found := reportFound(t, s, token)

			var lost itemResponse
			s.do(t, "POST", "/api/items/missing", token, map[string]any{
				"category": "electronics", "name": "Phone", "location": "Library",
			}, &lost)
			err := store.SaveMatches(context.Background(), s.DB, map[int64][]model.MatchCandidate{
				lost.ID: {{LostItemID: lost.ID, FoundItemID: found.ID, Score: 55}},
			}, time.Now())
			if err != nil {
				t.Fatalf("SaveMatches: %v", err)
			}

			var all map[string][]model.MatchCandidate
			if status := s.do(t, "GET", "/api/matches", token, nil, &all); status != http.StatusOK {
				t.Fatalf("expected 200, got %d", status)
			}
			if len(all[itoa(lost.ID)]) != 1 {
				t.Errorf("expected stored candidates, got %+v", all)
			}
		})
	}
}

func TestJobRuns(t *testing.T) {
	s := newTestServer(t)
	manager := s.login(t, "manager", model.RoleManager)
	clerk := s.login(t, "clerk", model.RoleUser)

	at := time.Date(2026, 10, 18, 4, 0, 0, 0, time.UTC)
	if err := store.RecordJobRun(context.Background(), s.DB, "donation-scan", at); err != nil {
		t.Fatalf("RecordJobRun: %v", err)
	}

	var runs map[string]time.Time
	if status := s.do(t, "GET", "/api/jobs", manager, nil, &runs); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !runs["donation-scan"].Equal(at) {
		t.Errorf("expected donation scan at %v, got %v", at, runs)
	}

	if status := s.do(t, "GET", "/api/jobs", clerk, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user, got %d", status)
	}
}
