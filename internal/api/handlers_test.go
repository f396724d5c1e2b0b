package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eleven-am/warden/internal/core"
	"github.com/eleven-am/warden/internal/domain"
	json "github.com/eleven-am/warden/internal/xjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *core.Manager) {
	t.Helper()

	cfg := domain.DefaultConfig()
	cfg.InMemory = true
	manager, err := core.NewWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return NewServer(manager, nil), manager
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func waitForRunStatus(t *testing.T, s *Server, runID string, want domain.RunStatus) domain.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/runs/"+runID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var run domain.Run
		decodeBody(t, rec, &run)
		if run.Status == want {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached %s", runID, want)
	return domain.Run{}
}

func testWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:        "wf-api",
		EntryNode: "start",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeTypeStatic, Config: map[string]interface{}{"output": map[string]interface{}{"greeting": "hello"}}},
		},
	}
}

func TestAPI_Health(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_WorkflowLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/workflows", testWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/workflows/wf-api", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded domain.Workflow
	decodeBody(t, rec, &loaded)
	assert.Equal(t, "start", loaded.EntryNode)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/workflows/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_WorkflowValidationError(t *testing.T) {
	s, _ := newTestServer(t)

	invalid := &domain.Workflow{ID: "wf-bad"}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/workflows", invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RunLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/workflows", testWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs", map[string]interface{}{
		"workflow_id": "wf-api",
		"tenant_id":   "acme",
		"mode":        "auto",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run domain.Run
	decodeBody(t, rec, &run)
	require.NotEmpty(t, run.ID)

	final := waitForRunStatus(t, s, run.ID, domain.RunStatusCompleted)
	assert.Equal(t, domain.RunModeAuto, final.Mode)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs/"+run.ID+"/steps", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var steps []domain.Step
	decodeBody(t, rec, &steps)
	require.Len(t, steps, 1)
	assert.Equal(t, "hello", steps[0].Output["greeting"])
}

func TestAPI_RunNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/runs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_StartRunUnknownWorkflow(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/runs", map[string]interface{}{"workflow_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PolicyDeniedRunReturns403(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/workflows", testWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/policies", &domain.Policy{
		ID: "deny-all", Name: "deny-all",
		Scope: domain.ScopeGlobal, Effect: domain.EffectDeny,
		Priority: 1, Enabled: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs", map[string]interface{}{"workflow_id": "wf-api"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_ResumeNonPausedRunReturns400(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/workflows", testWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs", map[string]interface{}{"workflow_id": "wf-api"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run domain.Run
	decodeBody(t, rec, &run)
	waitForRunStatus(t, s, run.ID, domain.RunStatusCompleted)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs/"+run.ID+"/resume", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ChainEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/workflows", testWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs", map[string]interface{}{"workflow_id": "wf-api"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run domain.Run
	decodeBody(t, rec, &run)
	waitForRunStatus(t, s, run.ID, domain.RunStatusCompleted)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs/"+run.ID+"/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var chain domain.Chain
	decodeBody(t, rec, &chain)
	assert.Equal(t, run.ID, chain.RunID)
	require.NotEmpty(t, chain.Steps)
	require.NotEmpty(t, chain.Events)
	assert.Empty(t, chain.Steps[0].PrevHash)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs/"+run.ID+"/chain?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Execution history for run "+run.ID)
}

func TestAPI_CancelRun(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/workflows", testWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs", map[string]interface{}{"workflow_id": "wf-api"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run domain.Run
	decodeBody(t, rec, &run)
	waitForRunStatus(t, s, run.ID, domain.RunStatusCompleted)

	// Terminal runs reject cancellation.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs/"+run.ID+"/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
