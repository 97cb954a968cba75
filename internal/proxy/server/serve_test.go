package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabarr/grabarr/internal/actions"
	"github.com/grabarr/grabarr/internal/browse"
	"github.com/grabarr/grabarr/internal/config"
	"github.com/grabarr/grabarr/internal/events"
	"github.com/grabarr/grabarr/internal/proxy/controllers/jobs"
	"github.com/grabarr/grabarr/internal/runner"
	"github.com/grabarr/grabarr/internal/scheduler"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

// scriptedDaemon answers the handful of RPCs a short successful run needs.
type scriptedDaemon struct {
	mu sync.Mutex
}

func (f *scriptedDaemon) Call(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch command {
	case "core/obscure":
		return map[string]any{"obscured": "xxx"}, nil
	case "operations/size":
		return map[string]any{"bytes": float64(1024), "count": float64(1)}, nil
	case "sync/copy", "sync/sync", "sync/move":
		return map[string]any{"jobid": float64(1)}, nil
	case "job/status":
		return map[string]any{"finished": true, "success": true, "error": ""}, nil
	case "core/stats":
		return map[string]any{"bytes": float64(1024), "speed": float64(512)}, nil
	case "job/stop":
		return map[string]any{}, nil
	}
	return nil, fmt.Errorf("unexpected command: %s", command)
}

type apiHarness struct {
	store  *store.Store
	server *httptest.Server
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	st, err := store.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Database.Migrate())

	fake := &scriptedDaemon{}
	broker := events.NewBroker()
	pipeline := actions.NewPipeline(st, fake, nil)
	engine := runner.NewRunner(context.Background(), st, fake, pipeline, broker,
		runner.WithPollInterval(10*time.Millisecond))
	t.Cleanup(engine.Close)

	sched := scheduler.NewScheduler(context.Background(), st, engine)
	t.Cleanup(sched.Close)

	sessions := browse.NewManager(fake)
	t.Cleanup(sessions.Close)

	cfg := &config.Config{CORSOrigin: "*"}
	srv := httptest.NewServer(NewMux(cfg, Deps{
		Store:    st,
		Runner:   engine,
		Sched:    sched,
		Sessions: sessions,
		Broker:   broker,
	}))
	t.Cleanup(srv.Close)

	return &apiHarness{store: st, server: srv}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *apiHarness) createRemote(t *testing.T, name string) types.Remote {
	t.Helper()
	remote := types.Remote{
		Name:   name,
		Type:   types.RemoteLocal,
		Config: map[string]string{"path": t.TempDir()},
	}
	require.NoError(t, h.store.Database.CreateRemote(&remote))
	return remote
}

func TestJobEndpoints(t *testing.T) {
	h := newAPIHarness(t)
	src := h.createRemote(t, "src")
	dst := h.createRemote(t, "dst")

	// Create.
	resp := h.do(t, http.MethodPost, "/api/jobs", types.Job{
		Name:           "nightly-sync",
		SourceRemoteID: src.ID,
		DestRemoteID:   dst.ID,
		Operation:      types.OperationCopy,
		Enabled:        true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created jobs.JobConfigResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.True(t, created.Success)
	require.NotZero(t, created.Data.ID)
	jobID := created.Data.ID

	// List carries a digest over the payload.
	resp = h.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed jobs.JobsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed.Data, 1)
	assert.NotEmpty(t, listed.Digest)

	// Single get.
	resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d", jobID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Unknown id maps to 404.
	resp = h.do(t, http.MethodGet, "/api/jobs/9999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Invalid payload maps to 400.
	resp = h.do(t, http.MethodPost, "/api/jobs", types.Job{
		Name:           "broken",
		SourceRemoteID: src.ID,
		DestRemoteID:   dst.ID,
		Operation:      "teleport",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Update.
	created.Data.DestPath = "archive"
	resp = h.do(t, http.MethodPut, fmt.Sprintf("/api/jobs/%d", jobID), created.Data)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stored, err := h.store.Database.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, "archive", stored.DestPath)

	// Kick off a run; completion lands in history asynchronously.
	resp = h.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%d/run", jobID), nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		entries, err := h.store.Database.GetHistory(jobID, 0)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Rotate the embed key.
	resp = h.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%d/embed-key", jobID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated jobs.EmbedKeyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rotated))
	assert.NotEmpty(t, rotated.EmbedKey)
	assert.NotEqual(t, created.Data.EmbedKey, rotated.EmbedKey)

	// Delete.
	resp = h.do(t, http.MethodDelete, fmt.Sprintf("/api/jobs/%d", jobID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = h.store.Database.GetJob(jobID)
	require.Error(t, err)
}

func TestJobHistoryEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	src := h.createRemote(t, "hsrc")
	dst := h.createRemote(t, "hdst")

	job := types.Job{
		Name:           "with-history",
		SourceRemoteID: src.ID,
		DestRemoteID:   dst.ID,
		Operation:      types.OperationCopy,
	}
	require.NoError(t, h.store.Database.CreateJob(nil, &job))
	require.NoError(t, h.store.Database.CreateHistory(&types.JobHistory{
		JobID:  job.ID,
		Status: "success",
	}, 50))

	resp := h.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d/history", job.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Data []types.JobHistory `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Data, 1)
	assert.Equal(t, "success", payload.Data[0].Status)
}

func TestSettingsEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodPut, "/api/settings/transfers", 8)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 8, h.store.Database.GetSettingInt("transfers", 0))

	resp = h.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVersionAndCORS(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, Version, payload["version"])

	resp = h.do(t, http.MethodOptions, "/api/jobs", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestBrowseEndpoints(t *testing.T) {
	h := newAPIHarness(t)
	remote := h.createRemote(t, "disk")

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/remotes/%d/browse", remote.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.SessionID)

	resp = h.do(t, http.MethodPost, "/api/browse/"+created.SessionID, map[string]string{"path": ""})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, "/api/browse/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Browsing an ended session maps to 404.
	resp = h.do(t, http.MethodPost, "/api/browse/"+created.SessionID, map[string]string{"path": ""})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
