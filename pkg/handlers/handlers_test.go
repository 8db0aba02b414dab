package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/pipeline"
	"github.com/ASHISH26940/storyspark-api/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

type memStore struct {
	mu         sync.Mutex
	parents    map[string]*db.Parent
	characters []db.Character
	scenarios  []db.Scenario
	children   []db.Child
	clips      []db.Clip
	assets     map[uuid.UUID]*db.ClipAsset
}

func (m *memStore) CreateParent(_ context.Context, p *db.Parent) (*db.Parent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	m.parents[p.Email] = p
	return p, nil
}

func (m *memStore) FindParentByEmail(_ context.Context, email string) (*db.Parent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parents[email], nil
}

func (m *memStore) ListCharacters(context.Context) ([]db.Character, error) { return m.characters, nil }

func (m *memStore) GetCharacter(_ context.Context, id uuid.UUID) (*db.Character, error) {
	for i := range m.characters {
		if m.characters[i].ID == id {
			return &m.characters[i], nil
		}
	}
	return nil, nil
}

func (m *memStore) ListScenarios(context.Context) ([]db.Scenario, error) { return m.scenarios, nil }

func (m *memStore) GetScenarioByType(_ context.Context, t string) (*db.Scenario, error) {
	for i := range m.scenarios {
		if m.scenarios[i].Type == t {
			return &m.scenarios[i], nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateChild(_ context.Context, child *db.Child) (*db.Child, error) {
	child.ID = uuid.New()
	m.children = append(m.children, *child)
	return child, nil
}

func (m *memStore) ListChildrenForParent(_ context.Context, parentID uuid.UUID) ([]db.Child, error) {
	var out []db.Child
	for _, ch := range m.children {
		if ch.ParentID == parentID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *memStore) FindChildForParent(_ context.Context, id, parentID uuid.UUID) (*db.Child, error) {
	for i := range m.children {
		if m.children[i].ID == id && m.children[i].ParentID == parentID {
			return &m.children[i], nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateClip(_ context.Context, clip *db.Clip) (*db.Clip, error) {
	clip.ID = uuid.New()
	clip.CreatedAt = time.Now()
	clip.UpdatedAt = clip.CreatedAt
	m.clips = append(m.clips, *clip)
	return clip, nil
}

func (m *memStore) ownerOf(childID uuid.UUID) uuid.UUID {
	for _, ch := range m.children {
		if ch.ID == childID {
			return ch.ParentID
		}
	}
	return uuid.Nil
}

func (m *memStore) FindClipForParent(_ context.Context, id, parentID uuid.UUID) (*db.Clip, error) {
	for i := range m.clips {
		if m.clips[i].ID == id && m.ownerOf(m.clips[i].ChildID) == parentID {
			cp := m.clips[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListClipsForParent(_ context.Context, parentID uuid.UUID, childID *uuid.UUID) ([]db.Clip, error) {
	var out []db.Clip
	for _, c := range m.clips {
		if m.ownerOf(c.ChildID) != parentID || (childID != nil && c.ChildID != *childID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) FindClipAsset(_ context.Context, clipID uuid.UUID) (*db.ClipAsset, error) {
	return m.assets[clipID], nil
}

type countingWaker struct{ n int }

func (w *countingWaker) Notify() { w.n++ }

type fakeApprover struct {
	err error
}

func (a fakeApprover) Approve(_ context.Context, clipID, parentID uuid.UUID, approved bool, note string) (*db.Clip, *db.Approval, error) {
	if a.err != nil {
		return nil, nil, a.err
	}
	status := db.StatusRejected
	if approved {
		status = db.StatusApproved
	}
	return &db.Clip{ID: clipID, Status: status},
		&db.Approval{ID: uuid.New(), ClipID: clipID, ParentID: parentID, Approved: approved, ReviewedAt: time.Now()}, nil
}

type dirFiles string

func (d dirFiles) Contains(path string) bool { return strings.HasPrefix(path, string(d)) }

type env struct {
	t      *testing.T
	store  *memStore
	waker  *countingWaker
	h      *Handlers
	router *gin.Engine
	parent uuid.UUID
	token  string
	child  db.Child
	frog   db.Character
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	frog := db.Character{ID: uuid.New(), Name: "Frog", ShowName: "Frog and Toad", SystemPrompt: "secret prompt"}
	store := &memStore{
		parents:    map[string]*db.Parent{},
		characters: []db.Character{frog},
		scenarios:  []db.Scenario{{ID: uuid.New(), Type: "bedtime", Name: "Bedtime", Structure: types.JSONText(`["Greeting","Goodnight"]`)}},
		assets:     map[uuid.UUID]*db.ClipAsset{},
	}
	tokens := services.NewTokenService("test-secret", time.Hour)
	parent := uuid.New()
	token, err := tokens.GenerateToken(parent, "mum@example.com", "Mum")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	child := db.Child{ID: uuid.New(), ParentID: parent, Name: "Thomas", Age: sql.NullInt64{Int64: 4, Valid: true}}
	store.children = append(store.children, child)

	waker := &countingWaker{}
	h := NewHandlers(nil, store, tokens, fakeApprover{}, waker, dirFiles(t.TempDir()))
	return &env{t: t, store: store, waker: waker, h: h, router: h.NewRouter(), parent: parent, token: token, child: child, frog: frog}
}

func (e *env) do(method, path string, body any, auth bool) (*httptest.ResponseRecorder, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			e.t.Fatalf("decode body %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func (e *env) addClip(status db.ClipStatus) db.Clip {
	clip := db.Clip{ID: uuid.New(), ChildID: e.child.ID, CharacterID: e.frog.ID, ScenarioType: "bedtime", Status: status}
	e.store.clips = append(e.store.clips, clip)
	return clip
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	creds := map[string]string{"name": "Dad", "email": "Dad@Example.com", "password": "longenough"}

	w, body := e.do(http.MethodPost, "/auth/register", creds, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %v", w.Code, body)
	}
	if w, _ := e.do(http.MethodPost, "/auth/register", creds, false); w.Code != http.StatusConflict {
		t.Errorf("duplicate register = %d", w.Code)
	}

	w, body = e.do(http.MethodPost, "/auth/login", map[string]string{"email": "dad@example.com", "password": "longenough"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %v", w.Code, body)
	}
	data := body["data"].(map[string]any)
	if _, err := e.h.Tokens.ValidateToken(data["token"].(string)); err != nil {
		t.Errorf("issued token invalid: %v", err)
	}

	if w, _ := e.do(http.MethodPost, "/auth/login", map[string]string{"email": "dad@example.com", "password": "wrong-password"}, false); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password login = %d", w.Code)
	}
}

func TestCatalogHidesPrompt(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(http.MethodGet, "/api/characters", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret prompt") {
		t.Error("system prompt must not be exposed")
	}
	if w, _ := e.do(http.MethodGet, "/api/characters/"+uuid.NewString(), nil, false); w.Code != http.StatusNotFound {
		t.Errorf("unknown character = %d", w.Code)
	}
	if w, _ := e.do(http.MethodGet, "/api/characters/nope", nil, false); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", w.Code)
	}
}

func TestChildrenRequireAuth(t *testing.T) {
	e := newEnv(t)
	if w, _ := e.do(http.MethodGet, "/api/children", nil, false); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d", w.Code)
	}
	w, body := e.do(http.MethodPost, "/api/children", map[string]any{"name": "Maya", "age": 5}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create child = %d %v", w.Code, body)
	}
	w, body = e.do(http.MethodGet, "/api/children", nil, true)
	if w.Code != http.StatusOK || len(body["data"].([]any)) != 2 {
		t.Errorf("list children = %d %v", w.Code, body)
	}
	if w, _ := e.do(http.MethodPost, "/api/children", map[string]any{"name": "Old", "age": 40}, true); w.Code != http.StatusBadRequest {
		t.Errorf("out of range age = %d", w.Code)
	}
}

func TestGenerateClip(t *testing.T) {
	e := newEnv(t)
	req := map[string]any{
		"child_id":      e.child.ID,
		"character_id":  e.frog.ID,
		"scenario_type": "Bedtime",
		"parent_note":   "  He had a long day  ",
	}
	w, body := e.do(http.MethodPost, "/api/clips/generate", req, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("generate = %d %v", w.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["status"] != string(db.StatusPending) || data["parent_note"] != "He had a long day" {
		t.Errorf("clip = %v", data)
	}
	if e.waker.n != 1 {
		t.Errorf("worker notified %d times", e.waker.n)
	}
	if len(e.store.clips) != 1 || e.store.clips[0].ScenarioType != "bedtime" {
		t.Errorf("stored clips = %+v", e.store.clips)
	}
}

func TestGenerateClipRejects(t *testing.T) {
	e := newEnv(t)
	other := db.Child{ID: uuid.New(), ParentID: uuid.New(), Name: "Stranger"}
	e.store.children = append(e.store.children, other)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"other parent's child", map[string]any{"child_id": other.ID, "character_id": e.frog.ID, "scenario_type": "bedtime"}, http.StatusNotFound},
		{"unknown character", map[string]any{"child_id": e.child.ID, "character_id": uuid.New(), "scenario_type": "bedtime"}, http.StatusNotFound},
		{"unknown scenario", map[string]any{"child_id": e.child.ID, "character_id": e.frog.ID, "scenario_type": "space"}, http.StatusBadRequest},
		{"missing fields", map[string]any{"child_id": e.child.ID}, http.StatusBadRequest},
		{"bad uuid", map[string]any{"child_id": "nope", "character_id": e.frog.ID, "scenario_type": "bedtime"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w, body := e.do(http.MethodPost, "/api/clips/generate", tt.body, true); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%v)", w.Code, tt.want, body)
			}
		})
	}
	if len(e.store.clips) != 0 || e.waker.n != 0 {
		t.Error("rejected requests must not create clips")
	}
}

func TestGetClipShowsSafetyFeedback(t *testing.T) {
	e := newEnv(t)
	clip := e.addClip(db.StatusSafetyFailed)
	e.store.clips[0].SafetyFeedback = sql.NullString{String: "contains guilt-based phrasing", Valid: true}
	e.store.clips[0].SafetyChecks = types.NullJSONText{JSONText: types.JSONText(`{"no_guilt":{"pass":false}}`), Valid: true}

	w, body := e.do(http.MethodGet, "/api/clips/"+clip.ID.String(), nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := body["data"].(map[string]any)
	if data["safety_feedback"] != "contains guilt-based phrasing" || data["audio_url"] != nil {
		t.Errorf("clip = %v", data)
	}
	if _, ok := data["safety_checks"].(map[string]any)["no_guilt"]; !ok {
		t.Errorf("safety checks = %v", data["safety_checks"])
	}

	e.token, _ = e.h.Tokens.GenerateToken(uuid.New(), "x@example.com", "X")
	if w, _ := e.do(http.MethodGet, "/api/clips/"+clip.ID.String(), nil, true); w.Code != http.StatusNotFound {
		t.Errorf("other parent = %d", w.Code)
	}
}

func TestListClipsFilter(t *testing.T) {
	e := newEnv(t)
	e.addClip(db.StatusReady)
	w, body := e.do(http.MethodGet, "/api/clips?child_id="+e.child.ID.String(), nil, true)
	if w.Code != http.StatusOK || len(body["data"].([]any)) != 1 {
		t.Errorf("list = %d %v", w.Code, body)
	}
	w, body = e.do(http.MethodGet, "/api/clips?child_id="+uuid.NewString(), nil, true)
	if w.Code != http.StatusOK || len(body["data"].([]any)) != 0 {
		t.Errorf("filtered list = %d %v", w.Code, body)
	}
	if w, _ := e.do(http.MethodGet, "/api/clips?child_id=bad", nil, true); w.Code != http.StatusBadRequest {
		t.Errorf("bad filter = %d", w.Code)
	}
}

func TestClipAudio(t *testing.T) {
	e := newEnv(t)
	root := string(e.h.Files.(dirFiles))
	voice := filepath.Join(root, "voice.mp3")
	mixed := filepath.Join(root, "voice_mixed.mp3")
	os.WriteFile(voice, []byte("voice"), 0o644)
	os.WriteFile(mixed, []byte("mixed"), 0o644)

	clip := e.addClip(db.StatusReady)
	e.store.assets[clip.ID] = &db.ClipAsset{ClipID: clip.ID, VoicePath: voice, MixedPath: sql.NullString{String: mixed, Valid: true}}

	w, _ := e.do(http.MethodGet, "/api/clips/"+clip.ID.String()+"/audio", nil, true)
	if w.Code != http.StatusOK || w.Body.String() != "mixed" {
		t.Errorf("audio = %d %q", w.Code, w.Body.String())
	}

	pending := e.addClip(db.StatusGenerating)
	if w, _ := e.do(http.MethodGet, "/api/clips/"+pending.ID.String()+"/audio", nil, true); w.Code != http.StatusNotFound {
		t.Errorf("no asset = %d", w.Code)
	}

	outside := e.addClip(db.StatusReady)
	e.store.assets[outside.ID] = &db.ClipAsset{ClipID: outside.ID, VoicePath: "/etc/passwd"}
	if w, _ := e.do(http.MethodGet, "/api/clips/"+outside.ID.String()+"/audio", nil, true); w.Code != http.StatusInternalServerError {
		t.Errorf("outside path = %d", w.Code)
	}
}

func TestApproveClip(t *testing.T) {
	e := newEnv(t)
	clip := e.addClip(db.StatusReady)

	w, body := e.do(http.MethodPost, "/api/clips/"+clip.ID.String()+"/approve", map[string]any{"approved": true}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("approve = %d %v", w.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["clip"].(map[string]any)["status"] != string(db.StatusApproved) {
		t.Errorf("data = %v", data)
	}

	if w, _ := e.do(http.MethodPost, "/api/clips/"+clip.ID.String()+"/approve", map[string]any{"note": "x"}, true); w.Code != http.StatusBadRequest {
		t.Errorf("missing decision = %d", w.Code)
	}

	e.h.Pipeline = fakeApprover{err: pipeline.ErrInvalidTransition}
	if w, _ := e.do(http.MethodPost, "/api/clips/"+clip.ID.String()+"/approve", map[string]any{"approved": false}, true); w.Code != http.StatusConflict {
		t.Errorf("not ready = %d", w.Code)
	}
}

func TestClipEventsDisabled(t *testing.T) {
	e := newEnv(t)
	clip := e.addClip(db.StatusGenerating)
	if w, _ := e.do(http.MethodGet, "/api/clips/"+clip.ID.String()+"/events", nil, true); w.Code != http.StatusNotImplemented {
		t.Errorf("events without redis = %d", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	e := newEnv(t)
	w, body := e.do(http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", w.Code, body)
	}
}
