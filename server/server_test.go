package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meshflow/meshflow/pkg/config"
	"github.com/meshflow/meshflow/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func newTestServer(t *testing.T, opts ...server.Option) *server.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := server.NewServer(config.Default(), opts...)
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var payload apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func greeterDoc() map[string]any {
	return map[string]any{
		"id": "greeter",
		"nodes": []any{
			map[string]any{"id": "start", "type": "trigger"},
			map[string]any{
				"id":     "greet",
				"type":   "set",
				"config": map[string]any{"key": "greeting", "value": "hi {{ .payload.name }}"},
			},
			map[string]any{"id": "done", "type": "output"},
		},
	}
}

func TestServer_Health(t *testing.T) {
	t.Run("Should report a healthy status", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		payload := decodeResponse(t, rec)
		assert.Equal(t, "healthy", payload.Data["status"])
		assert.Equal(t, "live", payload.Data["mode"])
	})
}

func TestServer_Execute(t *testing.T) {
	t.Run("Should execute a workflow document end to end", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/executions", map[string]any{
			"workflow": greeterDoc(),
			"input":    map[string]any{"name": "Ada"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		payload := decodeResponse(t, rec)
		assert.Equal(t, "greeter", payload.Data["workflowId"])
		assert.Equal(t, float64(3), payload.Data["nodesExecuted"])
		vars, ok := payload.Data["variables"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "hi Ada", vars["greeting"])
	})
	t.Run("Should reject a body without a workflow document", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/executions", map[string]any{
			"input": map[string]any{},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		problem := decodeProblem(t, rec)
		assert.Contains(t, problem["detail"], "workflow document is required")
	})
	t.Run("Should reject a document with an unregistered node type", func(t *testing.T) {
		srv := newTestServer(t)
		doc := map[string]any{
			"id": "mystery",
			"nodes": []any{
				map[string]any{"id": "start", "type": "trigger"},
				map[string]any{"id": "warp", "type": "teleport"},
			},
		}
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/executions", map[string]any{"workflow": doc})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		problem := decodeProblem(t, rec)
		assert.Contains(t, problem["detail"], "teleport")
	})
	t.Run("Should reject an unknown execution mode", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/executions", map[string]any{
			"workflow": greeterDoc(),
			"mode":     "turbo",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		problem := decodeProblem(t, rec)
		assert.Contains(t, problem["detail"], "unknown execution mode")
	})
	t.Run("Should substitute service outputs in dry-run mode", func(t *testing.T) {
		srv := newTestServer(t)
		doc := map[string]any{
			"id": "store",
			"nodes": []any{
				map[string]any{"id": "start", "type": "trigger"},
				map[string]any{
					"id":     "save",
					"type":   "kv_set",
					"config": map[string]any{"key": "count", "value": 1},
				},
			},
		}
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/executions", map[string]any{
			"workflow": doc,
			"mode":     "dry-run",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		payload := decodeResponse(t, rec)
		output, ok := payload.Data["output"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, output["success"])
	})
	t.Run("Should report an aborted run as a problem with the failing node", func(t *testing.T) {
		srv := newTestServer(t)
		doc := map[string]any{
			"id": "broken",
			"nodes": []any{
				map[string]any{"id": "start", "type": "trigger"},
				map[string]any{
					"id":     "bad",
					"type":   "json_decode",
					"config": map[string]any{"data": "{broken"},
				},
			},
		}
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/executions", map[string]any{"workflow": doc})
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		problem := decodeProblem(t, rec)
		assert.Equal(t, "Workflow Execution Failed", problem["title"])
		assert.Equal(t, "bad", problem["nodeId"])
		assert.NotEmpty(t, problem["executionId"])
	})
}

func TestServer_History(t *testing.T) {
	t.Run("Should list finished runs", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/executions", map[string]any{
			"workflow": greeterDoc(),
			"input":    map[string]any{"name": "Grace"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = doRequest(t, srv, http.MethodGet, "/api/v0/executions", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var payload struct {
			Data []map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		require.Len(t, payload.Data, 1)
		assert.Equal(t, "greeter", payload.Data[0]["workflowId"])
		assert.Equal(t, "completed", payload.Data[0]["status"])
	})
}

func TestServer_Validate(t *testing.T) {
	t.Run("Should accept a well-formed document", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/workflows/validate", greeterDoc())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		payload := decodeResponse(t, rec)
		assert.Equal(t, true, payload.Data["valid"])
		assert.Equal(t, "greeter", payload.Data["workflowId"])
		assert.Equal(t, float64(3), payload.Data["nodes"])
	})
	t.Run("Should flag an edge pointing at a missing node", func(t *testing.T) {
		srv := newTestServer(t)
		doc := map[string]any{
			"id": "dangling",
			"nodes": []any{
				map[string]any{"id": "start", "type": "trigger"},
			},
			"edges": []any{
				map[string]any{"from": "start", "to": "ghost"},
			},
		}
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/workflows/validate", doc)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		problem := decodeProblem(t, rec)
		assert.Contains(t, problem["detail"], "ghost")
	})
	t.Run("Should reject an empty body", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/workflows/validate", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Sample(t *testing.T) {
	t.Run("Should generate a sample value for a schema", func(t *testing.T) {
		srv := newTestServer(t)
		body := map[string]any{
			"schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"email": map[string]any{"type": "string", "format": "email"},
				},
				"required": []any{"email"},
			},
			"seed": 7,
		}
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/schemas/sample", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		payload := decodeResponse(t, rec)
		sample, ok := payload.Data["sample"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, sample["email"], "@")

		again := doRequest(t, srv, http.MethodPost, "/api/v0/schemas/sample", body)
		require.Equal(t, http.StatusOK, again.Code)
		assert.Equal(t, rec.Body.String(), again.Body.String())
	})
	t.Run("Should require a schema", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodPost, "/api/v0/schemas/sample", map[string]any{"seed": 1})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		problem := decodeProblem(t, rec)
		assert.Contains(t, problem["detail"], "schema is required")
	})
}

func TestServer_CORS(t *testing.T) {
	t.Run("Should answer preflight requests", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(t, srv, http.MethodOptions, "/api/v0/executions", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "300", rec.Header().Get("Access-Control-Max-Age"))
	})
}
