package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/blockflow/pkg/background"
	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence/file"
	"github.com/dukex/blockflow/pkg/realtime"
	"github.com/dukex/blockflow/pkg/services"
	"github.com/dukex/blockflow/pkg/testutil"
	"github.com/dukex/blockflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.Default()
	p := file.NewPersistence(t.TempDir())
	m := metrics.New()
	runner := background.NewRunner(logger, background.DefaultTimeout)
	notifier := realtime.NewDispatcher(logger, realtime.NoopSink{}, runner, m)
	gate := permissions.NewGate(logger, p.Workspaces(), permissions.NoopCache{}, m)

	handlers := web.NewAPIHandlers(
		logger,
		services.NewWorkflow(p, gate),
		services.NewSync(logger, p, gate, notifier, runner, m),
		services.NewDuplicator(logger, p, gate, m),
		services.NewAutoLayout(logger, p, gate, notifier, m),
		services.NewCheckpoints(logger, p, gate, notifier, m),
		services.NewWorkspaces(logger, p, gate),
	)

	app := fiber.New()
	app.Use(web.RecordMetrics(m))
	app.Get("/health", handlers.HealthCheck)
	handlers.Mount(app)

	return app
}

type response struct {
	status int
	body   map[string]any
}

func call(t *testing.T, app *fiber.App, method, path, userID string, payload any) response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")

	if userID != "" {
		req.Header.Set(web.UserIDHeader, userID)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}

	return response{status: resp.StatusCode, body: decoded}
}

// seed syncs one workflow with a loop container for userID and returns its id.
func seed(t *testing.T, app *fiber.App, userID string) string {
	t.Helper()

	resp := call(t, app, http.MethodPost, "/api/workflows/sync", userID, services.SyncRequest{
		Workflows: map[string]*services.WorkflowPayload{
			"wf-1": {Name: "Loops", State: testutil.ContainerState()},
		},
	})
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	return "wf-1"
}

func TestAPI_RequiresCallerIdentity(t *testing.T) {
	app := setupTestApp(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/workflows/sync"},
		{http.MethodPost, "/api/workflows/sync"},
		{http.MethodPost, "/api/workflows/wf/duplicate"},
		{http.MethodGet, "/api/copilot/checkpoints?chatId=c"},
		{http.MethodPost, "/api/workspaces"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			resp := call(t, app, p.method, p.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.status)
			assert.Equal(t, "unauthorized", resp.body["type"])
		})
	}
}

func TestAPI_SyncRoundTrip(t *testing.T) {
	app := setupTestApp(t)
	seed(t, app, "alice")

	resp := call(t, app, http.MethodGet, "/api/workflows/sync", "alice", nil)
	require.Equal(t, http.StatusOK, resp.status)

	workflows, ok := resp.body["workflows"].([]any)
	require.True(t, ok)
	require.Len(t, workflows, 1)
	assert.Equal(t, "wf-1", workflows[0].(map[string]any)["id"])

	resp = call(t, app, http.MethodGet, "/api/workflows/sync", "bob", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Empty(t, resp.body["workflows"])
}

func TestAPI_SyncErrors(t *testing.T) {
	app := setupTestApp(t)
	seed(t, app, "alice")

	tests := []struct {
		name    string
		payload any
		status  int
		typ     string
		code    string
	}{
		{
			name:    "empty submission over persisted workflows",
			payload: services.SyncRequest{Workflows: map[string]*services.WorkflowPayload{}},
			status:  http.StatusConflict,
			typ:     "conflict",
			code:    "empty_sync_payload",
		},
		{
			name:    "missing workflows",
			payload: map[string]any{},
			status:  http.StatusBadRequest,
			typ:     "validation_error",
			code:    "validation_error",
		},
		{
			name:    "unknown workspace",
			payload: services.SyncRequest{WorkspaceID: "missing", Workflows: map[string]*services.WorkflowPayload{}},
			status:  http.StatusNotFound,
			typ:     "not_found",
			code:    "workspace_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, app, http.MethodPost, "/api/workflows/sync", "alice", tt.payload)
			assert.Equal(t, tt.status, resp.status)
			assert.Equal(t, tt.typ, resp.body["type"])
			assert.Equal(t, tt.code, resp.body["code"])
		})
	}

	resp := call(t, app, http.MethodGet, "/api/workflows/sync", "alice", nil)
	assert.Len(t, resp.body["workflows"], 1)
}

func TestAPI_SyncValidationFields(t *testing.T) {
	app := setupTestApp(t)

	resp := call(t, app, http.MethodPost, "/api/workflows/sync", "alice", map[string]any{
		"workflows": map[string]any{
			"wf": map[string]any{"name": "", "state": map[string]any{}},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.status)

	errs, ok := resp.body["errors"].([]any)
	require.True(t, ok, resp.body)
	require.NotEmpty(t, errs)
	assert.Equal(t, "workflows[wf].name", errs[0].(map[string]any)["field"])
}

func TestAPI_Duplicate(t *testing.T) {
	app := setupTestApp(t)
	id := seed(t, app, "alice")

	resp := call(t, app, http.MethodPost, "/api/workflows/"+id+"/duplicate", "alice", map[string]any{"name": "Copy"})
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	assert.Equal(t, "Copy", resp.body["name"])
	assert.InDelta(t, 7, resp.body["blocksCount"], 0)
	assert.InDelta(t, 4, resp.body["edgesCount"], 0)
	assert.InDelta(t, 2, resp.body["subflowsCount"], 0)
	assert.NotEqual(t, id, resp.body["id"])

	resp = call(t, app, http.MethodPost, "/api/workflows/missing/duplicate", "alice", map[string]any{"name": "Copy"})
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, "workflow_not_found", resp.body["code"])

	resp = call(t, app, http.MethodPost, "/api/workflows/"+id+"/duplicate", "bob", map[string]any{"name": "Copy"})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "forbidden", resp.body["type"])
}

func TestAPI_AutoLayout(t *testing.T) {
	app := setupTestApp(t)
	id := seed(t, app, "alice")

	resp := call(t, app, http.MethodPost, "/api/workflows/"+id+"/autolayout", "alice", map[string]any{
		"strategy": "radial",
	})
	require.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "invalid_layout_config", resp.body["code"])

	resp = call(t, app, http.MethodPost, "/api/workflows/"+id+"/autolayout", "alice", nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, true, resp.body["success"])
	assert.InDelta(t, 7, resp.body["blockCount"], 0)
	assert.Equal(t, "horizontal", resp.body["direction"])

	placements, ok := resp.body["layoutedBlocks"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, placements, "loop")
}

func TestAPI_Status(t *testing.T) {
	app := setupTestApp(t)
	id := seed(t, app, "alice")

	resp := call(t, app, http.MethodGet, "/api/workflows/"+id+"/status", "alice", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, false, resp.body["isDeployed"])
	assert.Equal(t, false, resp.body["needsRedeployment"])

	resp = call(t, app, http.MethodGet, "/api/workflows/"+id+"/status", "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
}

func TestAPI_Checkpoints(t *testing.T) {
	app := setupTestApp(t)
	id := seed(t, app, "alice")

	resp := call(t, app, http.MethodPost, "/api/copilot/checkpoints", "alice", map[string]any{
		"workflowId":    id,
		"chatId":        "chat-1",
		"messageId":     "msg-1",
		"workflowState": map[string]any{"blocks": map[string]any{}, "edges": []any{}},
	})
	require.Equal(t, http.StatusCreated, resp.status, resp.body)

	checkpointID, ok := resp.body["id"].(string)
	require.True(t, ok)
	assert.Equal(t, "alice", resp.body["userId"])
	assert.NotContains(t, resp.body, "workflowState")

	resp = call(t, app, http.MethodGet, "/api/copilot/checkpoints?chatId=chat-1", "alice", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["checkpoints"], 1)

	resp = call(t, app, http.MethodGet, "/api/copilot/checkpoints?chatId=chat-1&limit=ten", "alice", nil)
	require.Equal(t, http.StatusBadRequest, resp.status)
	assert.NotEmpty(t, resp.body["errors"])

	resp = call(t, app, http.MethodPost, "/api/copilot/checkpoints/revert", "bob", map[string]any{"checkpointId": checkpointID})
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = call(t, app, http.MethodPost, "/api/copilot/checkpoints/revert", "alice", map[string]any{"checkpointId": checkpointID})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, true, resp.body["success"])
	assert.Equal(t, id, resp.body["workflowId"])

	resp = call(t, app, http.MethodGet, "/api/workflows/sync", "alice", nil)
	workflows := resp.body["workflows"].([]any)
	state := workflows[0].(map[string]any)["state"].(map[string]any)
	assert.Empty(t, state["blocks"])
}

func TestAPI_Workspaces(t *testing.T) {
	app := setupTestApp(t)

	resp := call(t, app, http.MethodPost, "/api/workspaces", "alice", map[string]any{"name": "Team"})
	require.Equal(t, http.StatusCreated, resp.status, resp.body)

	workspaceID, ok := resp.body["id"].(string)
	require.True(t, ok)

	members := "/api/workspaces/" + workspaceID + "/members"

	resp = call(t, app, http.MethodPost, members, "alice", map[string]any{"userId": "bob", "role": "member"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	resp = call(t, app, http.MethodPost, members, "bob", map[string]any{"userId": "carol", "role": "viewer"})
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = call(t, app, http.MethodPost, members, "alice", map[string]any{"userId": "carol", "role": "god"})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = call(t, app, http.MethodGet, "/api/workflows/sync?workspaceId="+workspaceID, "bob", nil)
	assert.Equal(t, http.StatusOK, resp.status)

	resp = call(t, app, http.MethodGet, "/api/workflows/sync?workspaceId="+workspaceID, "carol", nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp := call(t, app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "healthy", resp.body["status"])
}
