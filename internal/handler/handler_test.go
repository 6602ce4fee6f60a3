package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"cycleconnect/internal/app/chat"
	"cycleconnect/internal/app/events"
	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/configs"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard, zerolog.Disabled)
	user.HashCost = bcrypt.MinCost
	m.Run()
}

type envelope struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Fields  []errs.FieldError `json:"fields"`
	Data    json.RawMessage   `json:"data"`
}

type testEnv struct {
	srv    *httptest.Server
	store  *store.Memory
	events *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	hub, err := chat.NewManager(st, nil, chat.Options{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(hub.Shutdown)

	cfg := &configs.AppConfig{
		Environment:     "development",
		JWTSecret:       "test-secret",
		JWTExpire:       time.Hour,
		RateLimitMax:    10000,
		RateLimitWindow: time.Minute,
	}

	rec := &events.Recorder{}
	deps := &AppDeps{
		Config: cfg,
		Store:  st,
		Hub:    hub,
		Gate:   NewGate(st, cfg.JWTSecret, cfg.JWTExpire),
		Events: rec,
	}

	srv := httptest.NewServer(Router(ctx, deps))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: st, events: rec}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}

	r, err := http.NewRequest(method, e.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return res.StatusCode, env
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"email":    email,
		"password": "secret123",
		"profile":  map[string]any{"firstName": "Test", "lastName": "Rider"},
		"location": map[string]any{"coordinates": []float64{-122.42, 37.77}},
	}
}

// register creates a user and returns its token and id.
func (e *testEnv) register(t *testing.T, email string) (string, string) {
	t.Helper()

	status, env := e.do(t, http.MethodPost, "/api/auth/register", "", registerBody(email))
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", email, status, env.Message)
	}

	var out struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	return out.Token, out.User.ID
}

func (e *testEnv) createRide(t *testing.T, token string, maxParticipants int, allowWaitlist bool) string {
	t.Helper()

	status, env := e.do(t, http.MethodPost, "/api/rides", token, map[string]any{
		"title":      "Sunday loop",
		"rideType":   "road",
		"difficulty": "intermediate",
		"route": map[string]any{
			"startPoint": map[string]any{"coordinates": []float64{-122.42, 37.77}, "address": "Ferry Building"},
		},
		"schedule":     map[string]any{"startTime": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)},
		"participants": map[string]any{"maxParticipants": maxParticipants},
		"settings":     map[string]any{"allowWaitlist": allowWaitlist},
	})
	if status != http.StatusCreated {
		t.Fatalf("create ride: status %d (%s %+v)", status, env.Message, env.Fields)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode ride: %v", err)
	}
	return out.ID
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/api/users/profile", "/api/rides", "/api/rides/user/my-rides"} {
		status, env := e.do(t, http.MethodGet, path, "", nil)
		if status != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, status)
		}
		if env.Error != errs.KindAuthentication {
			t.Errorf("%s: error kind = %q", path, env.Error)
		}
	}

	status, _ := e.do(t, http.MethodGet, "/api/users/profile", "not-a-token", nil)
	if status != http.StatusForbidden {
		t.Errorf("malformed token: status = %d, want 403", status)
	}
}

func TestRegisterLoginAndProfile(t *testing.T) {
	e := newTestEnv(t)

	token, id := e.register(t, "Ana@Example.com ")

	status, env := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "ana@example.com",
		"password": "secret123",
	})
	if status != http.StatusOK || env.Message != "Login successful" {
		t.Fatalf("login: status %d message %q", status, env.Message)
	}

	status, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "ana@example.com",
		"password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("bad password: status = %d, want 401", status)
	}

	status, env = e.do(t, http.MethodGet, "/api/users/profile", token, nil)
	if status != http.StatusOK {
		t.Fatalf("profile: status %d", status)
	}
	var me map[string]any
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if me["id"] != id || me["email"] != "ana@example.com" {
		t.Errorf("profile = %v", me)
	}
	if _, ok := me["password"]; ok {
		t.Error("profile exposes the password")
	}
}

func TestUpdateProfileIgnoresCredentials(t *testing.T) {
	e := newTestEnv(t)

	token, id := e.register(t, "ana@example.com")

	status, env := e.do(t, http.MethodPut, "/api/users/profile", token, map[string]any{
		"email":    "mallory@example.com",
		"password": "hijacked1",
		"profile":  map[string]any{"bio": "  Weekend climber  "},
	})
	if status != http.StatusOK {
		t.Fatalf("update: status %d (%s)", status, env.Message)
	}

	u, err := e.store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Email != "ana@example.com" || u.Profile.Bio != "Weekend climber" || u.Profile.FirstName != "Test" {
		t.Errorf("after update: email %q bio %q first name %q", u.Email, u.Profile.Bio, u.Profile.FirstName)
	}

	status, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "ana@example.com",
		"password": "secret123",
	})
	if status != http.StatusOK {
		t.Errorf("login with old password: status %d", status)
	}
	status, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "ana@example.com",
		"password": "hijacked1",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("login with body password: status %d, want 401", status)
	}
}

func TestUpdateProfileAcceptsEchoedRecord(t *testing.T) {
	e := newTestEnv(t)

	token, id := e.register(t, "ana@example.com")

	_, env := e.do(t, http.MethodGet, "/api/users/profile", token, nil)
	var me map[string]any
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	me["profile"].(map[string]any)["bio"] = "Gravel"
	me["profile"].(map[string]any)["verified"] = true
	me["ratings"] = map[string]any{"average": 5, "count": 99}
	me["id"] = "someone-else"

	status, env := e.do(t, http.MethodPut, "/api/users/profile", token, me)
	if status != http.StatusOK {
		t.Fatalf("update with echoed record: status %d (%s) %v", status, env.Message, env.Fields)
	}

	u, err := e.store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Profile.Bio != "Gravel" {
		t.Errorf("bio = %q, want Gravel", u.Profile.Bio)
	}
	if u.Profile.Verified || u.Ratings.Count != 0 {
		t.Errorf("server-owned fields changed: verified %v ratings %+v", u.Profile.Verified, u.Ratings)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "dup@example.com")

	status, env := e.do(t, http.MethodPost, "/api/auth/register", "", registerBody("DUP@example.com"))
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if env.Error != errs.KindConflict {
		t.Errorf("error kind = %q, want %q", env.Error, errs.KindConflict)
	}
	if len(env.Fields) != 1 || env.Fields[0].Field != "email" {
		t.Errorf("fields = %+v, want email", env.Fields)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	body := registerBody("bad-email")
	body["password"] = "123"

	status, env := e.do(t, http.MethodPost, "/api/auth/register", "", body)
	if status != http.StatusBadRequest || env.Error != errs.KindValidation {
		t.Fatalf("status %d kind %q", status, env.Error)
	}

	got := map[string]bool{}
	for _, f := range env.Fields {
		got[f.Field] = true
	}
	if !got["email"] || !got["password"] {
		t.Errorf("fields = %+v, want email and password", env.Fields)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "refresh@example.com")

	status, env := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"token": token})
	if status != http.StatusOK {
		t.Fatalf("refresh: status %d", status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil || out.Token == "" {
		t.Fatalf("refresh data = %s", env.Data)
	}

	status, _ = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"token": "garbage"})
	if status != http.StatusForbidden {
		t.Errorf("refresh garbage: status = %d, want 403", status)
	}

	status, env = e.do(t, http.MethodPost, "/api/auth/logout", "garbage", nil)
	if status != http.StatusOK || env.Message != "Logout successful" {
		t.Errorf("logout with bad token: status %d message %q", status, env.Message)
	}
}

func TestJoinRideOutcomes(t *testing.T) {
	e := newTestEnv(t)

	orgToken, _ := e.register(t, "org@example.com")
	rideID := e.createRide(t, orgToken, 2, true)

	status, env := e.do(t, http.MethodPost, "/api/rides/"+rideID+"/join", orgToken, nil)
	if status != http.StatusBadRequest || env.Code != errs.ErrOrganizerCannotJoin {
		t.Errorf("organizer join: status %d code %d", status, env.Code)
	}

	wantMessages := []string{"Successfully joined ride", "Successfully joined ride", "Added to waitlist"}
	var tokens []string
	for i, want := range wantMessages {
		tok, _ := e.register(t, fmt.Sprintf("rider%d@example.com", i))
		tokens = append(tokens, tok)

		status, env := e.do(t, http.MethodPost, "/api/rides/"+rideID+"/join", tok, nil)
		if status != http.StatusOK || env.Message != want {
			t.Errorf("rider %d: status %d message %q, want %q", i, status, env.Message, want)
		}
	}

	status, env = e.do(t, http.MethodPost, "/api/rides/"+rideID+"/join", tokens[0], nil)
	if status != http.StatusBadRequest || env.Code != errs.ErrAlreadyMember {
		t.Errorf("rejoin: status %d code %d", status, env.Code)
	}

	r, err := e.store.GetRide(context.Background(), rideID)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	if len(r.Participants.Confirmed) != 2 || len(r.Participants.Pending) != 1 {
		t.Errorf("participants = %+v", r.Participants)
	}

	status, env = e.do(t, http.MethodPost, "/api/rides/"+rideID+"/leave", tokens[0], nil)
	if status != http.StatusOK || env.Message != "Successfully left ride" {
		t.Errorf("leave: status %d message %q", status, env.Message)
	}

	var types []string
	for _, ev := range e.events.Events() {
		types = append(types, ev.Type)
	}
	want := []string{events.RideCreated, events.RideJoined, events.RideJoined, events.RideJoined, events.RideLeft}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestJoinFullRideWithoutWaitlist(t *testing.T) {
	e := newTestEnv(t)

	orgToken, _ := e.register(t, "org@example.com")
	rideID := e.createRide(t, orgToken, 2, false)

	const riders = 8
	tokens := make([]string, riders)
	for i := range tokens {
		tokens[i], _ = e.register(t, fmt.Sprintf("c%d@example.com", i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			status, env := e.do(t, http.MethodPost, "/api/rides/"+rideID+"/join", tok, nil)
			mu.Lock()
			statuses[status]++
			if status == http.StatusBadRequest && env.Error != errs.KindCapacity {
				t.Errorf("rejected join kind = %q", env.Error)
			}
			mu.Unlock()
		}(tok)
	}
	wg.Wait()

	if statuses[http.StatusOK] != 2 || statuses[http.StatusBadRequest] != riders-2 {
		t.Errorf("statuses = %v", statuses)
	}

	r, err := e.store.GetRide(context.Background(), rideID)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	if n := len(r.Participants.Confirmed); n != 2 {
		t.Errorf("confirmed = %d, want 2", n)
	}
}

func TestListAndMyRides(t *testing.T) {
	e := newTestEnv(t)

	orgToken, orgID := e.register(t, "org@example.com")
	riderToken, _ := e.register(t, "rider@example.com")
	first := e.createRide(t, orgToken, 5, true)
	e.createRide(t, orgToken, 5, true)

	e.do(t, http.MethodPost, "/api/rides/"+first+"/join", riderToken, nil)

	status, env := e.do(t, http.MethodGet, "/api/rides?limit=1", riderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	var list rideListResponse
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Rides) != 1 || list.Pagination.Total != 2 || list.Pagination.Pages != 2 {
		t.Errorf("list = %d rides, pagination %+v", len(list.Rides), list.Pagination)
	}
	if list.Rides[0].Organizer.ID != orgID || list.Rides[0].Organizer.Profile.FirstName != "Test" {
		t.Errorf("organizer not populated: %+v", list.Rides[0].Organizer)
	}

	status, _ = e.do(t, http.MethodGet, "/api/rides?status=bogus", riderToken, nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad status filter: %d", status)
	}

	cases := []struct {
		token string
		query string
		want  int
	}{
		{orgToken, "", 2},
		{orgToken, "?type=joined", 0},
		{riderToken, "", 1},
		{riderToken, "?type=organized", 0},
		{riderToken, "?type=joined", 1},
	}
	for _, tc := range cases {
		status, env := e.do(t, http.MethodGet, "/api/rides/user/my-rides"+tc.query, tc.token, nil)
		if status != http.StatusOK {
			t.Fatalf("my-rides%s: status %d", tc.query, status)
		}
		var rides []json.RawMessage
		if err := json.Unmarshal(env.Data, &rides); err != nil {
			t.Fatalf("decode my-rides: %v", err)
		}
		if len(rides) != tc.want {
			t.Errorf("my-rides%s = %d rides, want %d", tc.query, len(rides), tc.want)
		}
	}
}

func TestListRidesHugePage(t *testing.T) {
	e := newTestEnv(t)

	token, _ := e.register(t, "org@example.com")
	e.createRide(t, token, 5, true)

	for _, page := range []string{"461168601842738792", "9223372036854775807"} {
		status, env := e.do(t, http.MethodGet, "/api/rides?page="+page, token, nil)
		if status != http.StatusOK {
			t.Fatalf("page=%s: status %d (%s)", page, status, env.Message)
		}
		var list rideListResponse
		if err := json.Unmarshal(env.Data, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list.Rides) != 0 || list.Pagination.Total != 1 {
			t.Errorf("page=%s: %d rides, pagination %+v", page, len(list.Rides), list.Pagination)
		}
	}
}

func TestRideMessagesRequireMembership(t *testing.T) {
	e := newTestEnv(t)

	orgToken, orgID := e.register(t, "org@example.com")
	outsiderToken, _ := e.register(t, "out@example.com")
	rideID := e.createRide(t, orgToken, 5, true)

	msg := message.New("m1", orgID, message.Draft{RideID: rideID, Content: "meet at 8", Type: message.TypeText}, time.Now())
	if err := e.store.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	status, env := e.do(t, http.MethodGet, "/api/rides/"+rideID+"/messages", outsiderToken, nil)
	if status != http.StatusForbidden || env.Code != errs.ErrNotRideMember {
		t.Errorf("outsider: status %d code %d", status, env.Code)
	}

	status, env = e.do(t, http.MethodGet, "/api/rides/"+rideID+"/messages", orgToken, nil)
	if status != http.StatusOK {
		t.Fatalf("organizer: status %d", status)
	}
	var views []message.View
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(views) != 1 || views[0].Content != "meet at 8" || views[0].Sender.ID != orgID {
		t.Errorf("messages = %+v", views)
	}

	status, env = e.do(t, http.MethodGet, "/api/rides/missing/messages", orgToken, nil)
	if status != http.StatusNotFound || env.Code != errs.ErrRideNotFound {
		t.Errorf("missing ride: status %d code %d", status, env.Code)
	}
}

func TestLocationAndNearbyCyclists(t *testing.T) {
	e := newTestEnv(t)

	token, _ := e.register(t, "me@example.com")
	e.register(t, "near@example.com")

	status, env := e.do(t, http.MethodPut, "/api/users/location", token, map[string]any{
		"coordinates": []float64{-122.41, 37.78},
		"address":     "Market St",
	})
	if status != http.StatusOK || env.Message != "Location updated successfully" {
		t.Fatalf("location: status %d message %q", status, env.Message)
	}

	status, _ = e.do(t, http.MethodPut, "/api/users/location", token, map[string]any{
		"coordinates": []float64{200, 37.78},
	})
	if status != http.StatusBadRequest {
		t.Errorf("out-of-range longitude: status %d", status)
	}

	status, env = e.do(t, http.MethodGet, "/api/users/nearby/cyclists?longitude=-122.42", token, nil)
	if status != http.StatusBadRequest || len(env.Fields) == 0 || env.Fields[0].Field != "latitude" {
		t.Errorf("missing latitude: status %d fields %+v", status, env.Fields)
	}

	status, env = e.do(t, http.MethodGet, "/api/users/nearby/cyclists?latitude=37.77&longitude=-122.42", token, nil)
	if status != http.StatusOK {
		t.Fatalf("nearby: status %d", status)
	}
	var near []map[string]any
	if err := json.Unmarshal(env.Data, &near); err != nil {
		t.Fatalf("decode nearby: %v", err)
	}
	if len(near) != 1 {
		t.Fatalf("nearby = %d users, want 1 (self excluded)", len(near))
	}
}

func TestDeleteAccount(t *testing.T) {
	e := newTestEnv(t)
	token, id := e.register(t, "gone@example.com")

	status, env := e.do(t, http.MethodDelete, "/api/users/account", token, nil)
	if status != http.StatusOK || env.Message != "Account deleted successfully" {
		t.Fatalf("delete: status %d message %q", status, env.Message)
	}

	if _, err := e.store.GetUser(context.Background(), id); err != store.ErrNotFound {
		t.Errorf("GetUser after delete: %v", err)
	}

	status, _ = e.do(t, http.MethodGet, "/api/users/profile", token, nil)
	if status != http.StatusForbidden {
		t.Errorf("token of deleted user: status %d, want 403", status)
	}
}

func TestPresignWithoutStorage(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "pic@example.com")

	status, env := e.do(t, http.MethodPost, "/api/users/avatar/presign", token, map[string]any{
		"fileName": "me.png",
		"mimeType": "image/png",
		"fileSize": 1024,
	})
	if status != http.StatusServiceUnavailable || env.Code != errs.ErrStorageUnavailable {
		t.Errorf("status %d code %d", status, env.Code)
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	e := newTestEnv(t)

	status, env := e.do(t, http.MethodGet, "/api/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health: status %d", status)
	}
	var health map[string]any
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "OK" || health["database"] != "connected" {
		t.Errorf("health = %v", health)
	}

	status, env = e.do(t, http.MethodGet, "/nope", "", nil)
	if status != http.StatusNotFound || env.Code != errs.ErrRouteNotFound {
		t.Errorf("unknown route: status %d code %d", status, env.Code)
	}
}

func TestSecurityHeadersAndCompression(t *testing.T) {
	e := newTestEnv(t)

	r, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/health", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	r.Header.Set("Accept-Encoding", "gzip")

	res, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer res.Body.Close()

	for _, h := range securityHeaders {
		if got := res.Header.Get(h[0]); got != h[1] {
			t.Errorf("%s = %q, want %q", h[0], got, h[1])
		}
	}
	if got := res.Header.Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}

	zr, err := gzip.NewReader(res.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	var env envelope
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		t.Fatalf("decode gzipped body: %v", err)
	}
	if env.Code != 0 {
		t.Errorf("health code = %d", env.Code)
	}
}
