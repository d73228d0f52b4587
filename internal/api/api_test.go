package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/testutil"
)

const (
	contentA = `{"env":{"ANTHROPIC_AUTH_TOKEN":"sk-ant-api03-secretvalue"},"model":"a"}`
	contentB = `{"model":"b"}`
)

// testEnv wires a service over a temp target and returns its router.
// An empty token means auth disabled.
func testEnv(t *testing.T, authToken string) (*testutil.Env, http.Handler) {
	t.Helper()
	env := testutil.NewEnv(t, nil)
	router := NewRouter(env.Service, authToken != "", authToken, nil)
	return env, router
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createProfile(t *testing.T, router http.Handler, name, content string) Profile {
	t.Helper()
	w := do(t, router, http.MethodPost, "/profiles", CreateProfileRequest{Name: name, Content: content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s = %d, body = %s", name, w.Code, w.Body.String())
	}
	var p Profile
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCreateAndGetProfile(t *testing.T) {
	_, router := testEnv(t, "")
	created := createProfile(t, router, "work", contentA)
	if created.Fields.MaskedSecret != "sk-ant-a...alue" {
		t.Errorf("masked = %q", created.Fields.MaskedSecret)
	}

	w := do(t, router, http.MethodGet, "/profiles/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var p Profile
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Content != contentA {
		t.Errorf("content = %q", p.Content)
	}

	w = do(t, router, http.MethodGet, "/profiles/work", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get by name = %d", w.Code)
	}
}

func TestCreateProfileErrors(t *testing.T) {
	_, router := testEnv(t, "")
	createProfile(t, router, "dup", contentB)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate", CreateProfileRequest{Name: "dup", Content: contentB}, http.StatusConflict},
		{"bad name", CreateProfileRequest{Name: "a/b", Content: contentB}, http.StatusBadRequest},
		{"malformed", CreateProfileRequest{Name: "ok", Content: `{"a":`}, http.StatusBadRequest},
		{"not json", "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/profiles", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestListProfilesOmitsContent(t *testing.T) {
	_, router := testEnv(t, "")
	createProfile(t, router, "b", contentB)
	createProfile(t, router, "a", contentA)

	w := do(t, router, http.MethodGet, "/profiles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp ProfileListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Profiles[0].Name != "a" {
		t.Fatalf("list = %+v", resp)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("secretvalue")) {
		t.Error("list leaks raw secret")
	}

	w = do(t, router, http.MethodGet, "/profiles?q=B", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Profiles[0].Name != "b" {
		t.Errorf("search = %+v", resp)
	}
}

func TestUpdateProfile(t *testing.T) {
	_, router := testEnv(t, "")
	p := createProfile(t, router, "old", contentB)

	name := "new"
	w := do(t, router, http.MethodPut, "/profiles/"+p.ID, UpdateProfileRequest{Name: &name})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPut, "/profiles/"+p.ID, UpdateProfileRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty update = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPut, "/profiles/ghost", UpdateProfileRequest{Name: &name})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestApplyAndDeleteActive(t *testing.T) {
	env, router := testEnv(t, "")
	a := createProfile(t, router, "a", contentA)
	createProfile(t, router, "b", contentB)
	env.WriteTarget(t, contentB)

	w := do(t, router, http.MethodPost, "/profiles/a/apply?dry_run=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dry run = %d", w.Code)
	}
	if got := env.ReadTarget(t); got != contentB {
		t.Fatalf("dry run changed target")
	}

	w = do(t, router, http.MethodPost, "/profiles/a/apply", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("apply = %d, body = %s", w.Code, w.Body.String())
	}
	var res engine.Result
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.ActiveID != a.ID || res.Backup == nil {
		t.Errorf("apply result = %+v", res)
	}
	if got := env.ReadTarget(t); got != contentA {
		t.Errorf("target = %q", got)
	}

	w = do(t, router, http.MethodDelete, "/profiles/a", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("delete active = %d, want 409", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/profiles/b", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete inactive = %d, want 204", w.Code)
	}
	w = do(t, router, http.MethodPost, "/profiles/ghost/apply", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("apply missing = %d, want 404", w.Code)
	}
}

func TestApplyRejectsBadDryRun(t *testing.T) {
	env, router := testEnv(t, "")
	createProfile(t, router, "a", contentA)

	for _, v := range []string{"yes", "on", "maybe"} {
		w := do(t, router, http.MethodPost, "/profiles/a/apply?dry_run="+v, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("dry_run=%s status = %d, want 400", v, w.Code)
		}
		if !bytes.Contains(w.Body.Bytes(), []byte("dry_run must be a boolean")) {
			t.Errorf("dry_run=%s body = %s", v, w.Body.String())
		}
	}
	if _, err := os.Stat(env.Target); !os.IsNotExist(err) {
		t.Errorf("target should not exist, stat err = %v", err)
	}
}

func TestDuplicateProfile(t *testing.T) {
	_, router := testEnv(t, "")
	createProfile(t, router, "src", contentB)

	w := do(t, router, http.MethodPost, "/profiles/src/duplicate", DuplicateProfileRequest{Name: "copy"})
	if w.Code != http.StatusCreated {
		t.Fatalf("duplicate = %d", w.Code)
	}
	w = do(t, router, http.MethodPost, "/profiles/src/duplicate", DuplicateProfileRequest{Name: "copy"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate twice = %d, want 409", w.Code)
	}
}

func TestStatusAndReconcile(t *testing.T) {
	env, router := testEnv(t, "")
	p := createProfile(t, router, "a", contentA)

	w := do(t, router, http.MethodPost, "/reconcile", nil)
	var rr ReconcileResponse
	_ = json.Unmarshal(w.Body.Bytes(), &rr)
	if rr.Active != nil {
		t.Errorf("active without target = %+v", rr.Active)
	}

	env.WriteTarget(t, contentA)
	w = do(t, router, http.MethodPost, "/reconcile", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &rr)
	if rr.Active == nil || rr.Active.ID != p.ID {
		t.Fatalf("reconcile = %s", w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Exists || st.Active == nil || st.Active.ID != p.ID {
		t.Errorf("status = %+v", st)
	}
}

func TestBackupRoutes(t *testing.T) {
	env, router := testEnv(t, "")
	createProfile(t, router, "a", contentA)
	env.WriteTarget(t, contentB)

	if w := do(t, router, http.MethodPost, "/profiles/a/apply", nil); w.Code != http.StatusOK {
		t.Fatalf("apply = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/backups", nil); w.Code != http.StatusCreated {
		t.Fatalf("create backup = %d", w.Code)
	}

	w := do(t, router, http.MethodGet, "/backups", nil)
	var list BackupListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Backups) != 2 {
		t.Fatalf("backups = %d, want 2", len(list.Backups))
	}
	oldest := list.Backups[1]

	w = do(t, router, http.MethodPost, "/backups/restore", RestoreRequest{Path: oldest.Path})
	if w.Code != http.StatusOK {
		t.Fatalf("restore = %d, body = %s", w.Code, w.Body.String())
	}
	if got := env.ReadTarget(t); got != contentB {
		t.Errorf("restored target = %q", got)
	}

	w = do(t, router, http.MethodPost, "/backups/restore", RestoreRequest{Path: env.Target})
	if w.Code != http.StatusBadRequest {
		t.Errorf("restore foreign path = %d, want 400", w.Code)
	}

	keep := 1
	w = do(t, router, http.MethodPost, "/backups/cleanup", CleanupRequest{Keep: &keep})
	var pr engine.PruneResult
	_ = json.Unmarshal(w.Body.Bytes(), &pr)
	if w.Code != http.StatusOK || len(pr.Removed) != 2 {
		t.Errorf("cleanup = %d %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(oldest.Path); !os.IsNotExist(err) {
		t.Error("oldest backup should be pruned")
	}

	w = do(t, router, http.MethodGet, "/history", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"restored"`)) {
		t.Errorf("history = %s", w.Body.String())
	}
}

func TestWriteErrorStepError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"locked", &apperr.StepError{Step: "BackingUp", Kind: apperr.ErrFileLocked, TargetUnchanged: true}, http.StatusLocked},
		{"write", &apperr.StepError{Step: "Writing", Kind: apperr.ErrWrite, Err: errors.New("rename"), TargetUnchanged: true}, http.StatusInternalServerError},
		{"plain internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, "apply", tt.err)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			var body errResponse
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			var se *apperr.StepError
			if errors.As(tt.err, &se) {
				if body.Step != se.Step || !body.TargetUnchanged {
					t.Errorf("body = %+v", body)
				}
			} else if body.Error != "internal error" {
				t.Errorf("internal error leaked: %q", body.Error)
			}
		})
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(CreateProfileRequest{Name: "auth", Content: contentB})
	req := httptest.NewRequest(http.MethodPost, "/profiles", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/profiles", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/profiles", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	env := testutil.NewEnv(t, nil)

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(env.Service, authEnabled, token, sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
