package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Database.Migrate())
	return st
}

func createTestJob(t *testing.T, st *store.Store) types.Job {
	t.Helper()

	src := types.Remote{
		Name:   t.Name() + "-src",
		Type:   types.RemoteLocal,
		Config: map[string]string{"path": t.TempDir()},
	}
	require.NoError(t, st.Database.CreateRemote(&src))

	dst := types.Remote{
		Name:   t.Name() + "-dst",
		Type:   types.RemoteLocal,
		Config: map[string]string{"path": t.TempDir()},
	}
	require.NoError(t, st.Database.CreateRemote(&dst))

	job := types.Job{
		Name:           t.Name(),
		SourceRemoteID: src.ID,
		DestRemoteID:   dst.ID,
		Operation:      types.OperationCopy,
		Enabled:        true,
	}
	require.NoError(t, st.Database.CreateJob(nil, &job))
	return job
}

func bindAction(t *testing.T, st *store.Store, jobID int64, trigger, actionType string, config any, order int) {
	t.Helper()

	raw, err := json.Marshal(config)
	require.NoError(t, err)

	action := types.Action{
		Name:   fmt.Sprintf("%s-%s-%d", t.Name(), actionType, order),
		Type:   actionType,
		Config: raw,
	}
	require.NoError(t, st.Database.CreateAction(&action))
	require.NoError(t, st.Database.CreateJobAction(&types.JobAction{
		JobID:    jobID,
		ActionID: action.ID,
		Trigger:  trigger,
		Order:    order,
	}))
}

func TestExecuteRunsActionsInOrderAndSurvivesFailures(t *testing.T) {
	st := newTestStore(t)
	job := createTestJob(t, st)

	var mu sync.Mutex
	var hits []string
	record := func(tag string, status int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits = append(hits, tag)
			mu.Unlock()
			w.WriteHeader(status)
		}))
	}

	first := record("first", http.StatusOK)
	defer first.Close()
	broken := record("broken", http.StatusInternalServerError)
	defer broken.Close()
	last := record("last", http.StatusOK)
	defer last.Close()

	bindAction(t, st, job.ID, types.TriggerPostSuccess, types.ActionWebhook,
		types.WebhookConfig{URL: first.URL}, 1)
	bindAction(t, st, job.ID, types.TriggerPostSuccess, types.ActionWebhook,
		types.WebhookConfig{URL: broken.URL}, 2)
	bindAction(t, st, job.ID, types.TriggerPostSuccess, types.ActionWebhook,
		types.WebhookConfig{URL: last.URL}, 3)

	pipeline := NewPipeline(st, nil, nil)
	err := pipeline.Execute(context.Background(), job.ID, types.TriggerPostSuccess, nil)

	// The failing middle action is reported but does not stop the tail.
	require.Error(t, err)
	assert.Equal(t, []string{"first", "broken", "last"}, hits)
}

func TestExecuteSubstitutesWebhookBody(t *testing.T) {
	st := newTestStore(t)
	job := createTestJob(t, st)

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
	}))
	defer srv.Close()

	bindAction(t, st, job.ID, types.TriggerPostSuccess, types.ActionWebhook,
		types.WebhookConfig{
			URL:  srv.URL,
			Body: `{"job":"{job.name}","status":"{status}"}`,
		}, 1)

	pipeline := NewPipeline(st, nil, nil)
	tctx := map[string]any{
		"job":    map[string]any{"name": "nightly"},
		"status": "success",
	}
	require.NoError(t, pipeline.Execute(context.Background(), job.ID, types.TriggerPostSuccess, tctx))
	assert.Equal(t, `{"job":"nightly","status":"success"}`, gotBody)
}

func TestExecuteCommandActionAlwaysFails(t *testing.T) {
	st := newTestStore(t)
	job := createTestJob(t, st)

	bindAction(t, st, job.ID, types.TriggerPre, types.ActionCommand,
		map[string]any{"cmd": "rm -rf /"}, 1)

	pipeline := NewPipeline(st, nil, nil)
	err := pipeline.Execute(context.Background(), job.ID, types.TriggerPre, nil)
	require.ErrorIs(t, err, ErrCommandDisabled)
}

func TestExecuteDockerWithoutController(t *testing.T) {
	st := newTestStore(t)
	job := createTestJob(t, st)

	bindAction(t, st, job.ID, types.TriggerPre, types.ActionDocker,
		types.DockerConfig{Container: "plex", Operation: types.ContainerStop}, 1)

	pipeline := NewPipeline(st, nil, nil)
	err := pipeline.Execute(context.Background(), job.ID, types.TriggerPre, nil)
	require.ErrorIs(t, err, ErrDockerUnavailable)
}

func TestExecuteDelayHonorsContext(t *testing.T) {
	st := newTestStore(t)
	job := createTestJob(t, st)

	bindAction(t, st, job.ID, types.TriggerPre, types.ActionDelay,
		types.DelayConfig{Seconds: 30}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	pipeline := NewPipeline(st, nil, nil)
	start := time.Now()
	err := pipeline.Execute(ctx, job.ID, types.TriggerPre, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteNotificationWithoutTargetIsNoop(t *testing.T) {
	st := newTestStore(t)
	job := createTestJob(t, st)

	bindAction(t, st, job.ID, types.TriggerPostAlways, types.ActionNotification,
		types.NotificationConfig{Message: "done"}, 1)

	pipeline := NewPipeline(st, nil, nil)
	require.NoError(t, pipeline.Execute(context.Background(), job.ID, types.TriggerPostAlways, nil))
}

func TestExecuteNoBindings(t *testing.T) {
	st := newTestStore(t)
	job := createTestJob(t, st)

	pipeline := NewPipeline(st, nil, nil)
	require.NoError(t, pipeline.Execute(context.Background(), job.ID, types.TriggerPre, nil))
}
