package sqlite

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabarr/grabarr/internal/store/types"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func createRemotes(t *testing.T, db *Database) (types.Remote, types.Remote) {
	t.Helper()
	src := types.Remote{
		Name:   t.Name() + "-src",
		Type:   types.RemoteLocal,
		Config: map[string]string{"path": "/tmp/src"},
	}
	require.NoError(t, db.CreateRemote(&src))
	dst := types.Remote{
		Name:   t.Name() + "-dst",
		Type:   types.RemoteLocal,
		Config: map[string]string{"path": "/tmp/dst"},
	}
	require.NoError(t, db.CreateRemote(&dst))
	return src, dst
}

func createJob(t *testing.T, db *Database, mutate func(*types.Job)) types.Job {
	t.Helper()
	src, dst := createRemotes(t, db)
	job := types.Job{
		Name:           t.Name(),
		SourceRemoteID: src.ID,
		DestRemoteID:   dst.ID,
		Operation:      types.OperationCopy,
		Enabled:        true,
	}
	if mutate != nil {
		mutate(&job)
	}
	require.NoError(t, db.CreateJob(nil, &job))
	return job
}

func TestJobCRUD(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, func(j *types.Job) {
		j.SourcePath = "media/movies"
		j.DestPath = "archive"
		j.Excludes = []string{"*.tmp", "*.part"}
		j.Schedule = "0 3 * * *"
	})
	require.NotZero(t, job.ID)
	require.NotEmpty(t, job.EmbedKey)

	loaded, err := db.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Name, loaded.Name)
	assert.Equal(t, "media/movies", loaded.SourcePath)
	assert.Equal(t, []string{"*.tmp", "*.part"}, loaded.Excludes)
	assert.Equal(t, "0 3 * * *", loaded.Schedule)
	// Defaults applied at validation time.
	assert.Equal(t, types.CopyModeFolder, loaded.CopyMode)
	assert.Equal(t, types.TransferDirect, loaded.TransferMethod)
	assert.Equal(t, 1, loaded.MaxConcurrentRuns)

	loaded.DestPath = "archive/v2"
	require.NoError(t, db.UpdateJob(loaded))
	updated, err := db.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "archive/v2", updated.DestPath)

	require.NoError(t, db.DeleteJob(job.ID))
	_, err = db.GetJob(job.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, db.DeleteJob(job.ID), ErrNotFound)
}

func TestCreateJobValidation(t *testing.T) {
	db := newTestDB(t)
	src, dst := createRemotes(t, db)

	base := types.Job{
		Name:           "bad",
		SourceRemoteID: src.ID,
		DestRemoteID:   dst.ID,
	}

	invalidOp := base
	invalidOp.Operation = "teleport"
	require.ErrorIs(t, db.CreateJob(nil, &invalidOp), ErrValidation)

	invalidMode := base
	invalidMode.Operation = types.OperationCopy
	invalidMode.CopyMode = "sideways"
	require.ErrorIs(t, db.CreateJob(nil, &invalidMode), ErrValidation)

	invalidExclude := base
	invalidExclude.Operation = types.OperationCopy
	invalidExclude.Excludes = []string{"[unclosed"}
	require.ErrorIs(t, db.CreateJob(nil, &invalidExclude), ErrValidation)
}

func TestConcurrentWritersMakeProgress(t *testing.T) {
	db := newTestDB(t)
	src, dst := createRemotes(t, db)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			job := types.Job{
				Name:           fmt.Sprintf("bulk-%d", i),
				SourceRemoteID: src.ID,
				DestRemoteID:   dst.ID,
				Operation:      types.OperationCopy,
			}
			assert.NoError(t, db.CreateJob(nil, &job))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, db.SetSetting("transfers", i))
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("concurrent writers blocked")
	}
}

func TestGetEnabledJobs(t *testing.T) {
	db := newTestDB(t)
	enabled := createJob(t, db, nil)
	disabled := types.Job{
		Name:           "paused",
		SourceRemoteID: enabled.SourceRemoteID,
		DestRemoteID:   enabled.DestRemoteID,
		Operation:      types.OperationSync,
		Enabled:        false,
	}
	require.NoError(t, db.CreateJob(nil, &disabled))

	jobs, err := db.GetEnabledJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, enabled.ID, jobs[0].ID)
}

func TestUpdateJobStatus(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, nil)

	now := time.Now().UTC()
	require.NoError(t, db.UpdateJobStatus(job.ID, "running", "", &now))
	loaded, err := db.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "running", loaded.LastStatus)
	require.NotNil(t, loaded.LastRun)

	require.NoError(t, db.UpdateJobStatus(job.ID, "failed", "boom", nil))
	loaded, err = db.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", loaded.LastStatus)
	assert.Equal(t, "boom", loaded.LastError)
	// Timestamp untouched when lastRun is nil.
	require.NotNil(t, loaded.LastRun)
}

func TestRotateEmbedKey(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, nil)

	key, err := db.RotateEmbedKey(job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.EmbedKey, key)

	loaded, err := db.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, key, loaded.EmbedKey)

	_, err = db.RotateEmbedKey(9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryPruning(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		entry := types.JobHistory{
			JobID:     job.ID,
			Status:    "success",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Details:   map[string]any{"seq": i},
		}
		require.NoError(t, db.CreateHistory(&entry, 5))

		total, err := db.CountHistory()
		require.NoError(t, err)
		assert.LessOrEqual(t, total, 5)
	}

	entries, err := db.GetHistory(job.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	// Newest first; the three oldest rows were pruned.
	assert.Equal(t, float64(7), entries[0].Details["seq"])
	assert.Equal(t, float64(3), entries[4].Details["seq"])
}

func TestHistoryNoPruneWhenUnlimited(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, nil)

	for i := 0; i < 4; i++ {
		entry := types.JobHistory{JobID: job.ID, Status: "success"}
		require.NoError(t, db.CreateHistory(&entry, 0))
	}
	total, err := db.CountHistory()
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestHistoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, nil)

	started := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	speed := int64(1048576)
	entry := types.JobHistory{
		JobID:            job.ID,
		Status:           "failed",
		Details:          map[string]any{"error": "remote unreachable"},
		AvgSpeed:         &speed,
		FilesTransferred: []string{"a.mkv", "b.mkv"},
		JobSnapshot: &types.JobSnapshot{
			Name:          job.Name,
			Operation:     types.OperationCopy,
			ExecutionType: "manual",
			ScheduleName:  types.ScheduleManual,
		},
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	require.NoError(t, db.CreateHistory(&entry, 50))

	entries, err := db.GetHistory(job.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "remote unreachable", got.Details["error"])
	require.NotNil(t, got.AvgSpeed)
	assert.Equal(t, speed, *got.AvgSpeed)
	assert.Equal(t, []string{"a.mkv", "b.mkv"}, got.FilesTransferred)
	require.NotNil(t, got.JobSnapshot)
	assert.Equal(t, job.Name, got.JobSnapshot.Name)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.CompletedAt.Equal(completed))
}

func TestSettingsRoundTrip(t *testing.T) {
	db := newTestDB(t)

	assert.Equal(t, 60, db.GetSettingInt("missing", 60))
	assert.Equal(t, "fallback", db.GetSettingString("missing", "fallback"))
	assert.False(t, db.GetSettingBool("missing", false))

	require.NoError(t, db.SetSetting("cooldown", 120))
	assert.Equal(t, 120, db.GetSettingInt("cooldown", 60))

	require.NoError(t, db.SetSetting("cooldown", 30))
	assert.Equal(t, 30, db.GetSettingInt("cooldown", 60))

	require.NoError(t, db.SetSetting("notify_url", "http://ntfy.local/jobs"))
	assert.Equal(t, "http://ntfy.local/jobs", db.GetSettingString("notify_url", ""))

	require.NoError(t, db.SetSetting("pre_abort", true))
	assert.True(t, db.GetSettingBool("pre_abort", false))

	settings, err := db.GetAllSettings()
	require.NoError(t, err)
	assert.Len(t, settings, 3)
}

func TestJobActionsOrdering(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, nil)

	mkAction := func(name string) int64 {
		cfg, _ := json.Marshal(types.WebhookConfig{URL: "http://hook.local/" + name})
		action := types.Action{Name: name, Type: types.ActionWebhook, Config: cfg}
		require.NoError(t, db.CreateAction(&action))
		return action.ID
	}

	// Insert out of order; sort_order must win over insertion order.
	require.NoError(t, db.CreateJobAction(&types.JobAction{
		JobID: job.ID, ActionID: mkAction("third"), Trigger: types.TriggerPostSuccess, Order: 3,
	}))
	require.NoError(t, db.CreateJobAction(&types.JobAction{
		JobID: job.ID, ActionID: mkAction("first"), Trigger: types.TriggerPostSuccess, Order: 1,
	}))
	require.NoError(t, db.CreateJobAction(&types.JobAction{
		JobID: job.ID, ActionID: mkAction("second"), Trigger: types.TriggerPostSuccess, Order: 2,
	}))
	require.NoError(t, db.CreateJobAction(&types.JobAction{
		JobID: job.ID, ActionID: mkAction("other"), Trigger: types.TriggerPostFail, Order: 1,
	}))

	bindings, err := db.GetJobActions(job.ID, types.TriggerPostSuccess)
	require.NoError(t, err)
	require.Len(t, bindings, 3)
	assert.Equal(t, "first", bindings[0].Action.Name)
	assert.Equal(t, "second", bindings[1].Action.Name)
	assert.Equal(t, "third", bindings[2].Action.Name)
}

func TestCreateJobActionInvalidTrigger(t *testing.T) {
	db := newTestDB(t)
	job := createJob(t, db, nil)

	err := db.CreateJobAction(&types.JobAction{
		JobID: job.ID, ActionID: 1, Trigger: "sometimes", Order: 1,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestActionConfigValidation(t *testing.T) {
	db := newTestDB(t)

	noURL, _ := json.Marshal(types.WebhookConfig{})
	err := db.CreateAction(&types.Action{Name: "bad-hook", Type: types.ActionWebhook, Config: noURL})
	require.ErrorIs(t, err, ErrValidation)

	badDelay, _ := json.Marshal(types.DelayConfig{Seconds: -1})
	err = db.CreateAction(&types.Action{Name: "bad-delay", Type: types.ActionDelay, Config: badDelay})
	require.ErrorIs(t, err, ErrValidation)

	err = db.CreateAction(&types.Action{Name: "mystery", Type: "mystery"})
	require.ErrorIs(t, err, ErrValidation)

	badOp, _ := json.Marshal(types.DockerConfig{Container: "plex", Operation: "pause"})
	err = db.CreateAction(&types.Action{Name: "bad-docker", Type: types.ActionDocker, Config: badOp})
	require.ErrorIs(t, err, ErrValidation)
}

func TestScheduleTemplates(t *testing.T) {
	db := newTestDB(t)

	tmpl := types.ScheduleTemplate{
		Name:         "nightly",
		ScheduleType: "cron",
		Config:       types.ScheduleTemplateConfig{Cron: "0 3 * * *"},
	}
	require.NoError(t, db.CreateScheduleTemplate(&tmpl))
	require.NotZero(t, tmpl.ID)

	loaded, err := db.GetScheduleTemplateByName("nightly")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", loaded.Config.Cron)

	_, err = db.GetScheduleTemplateByName("absent")
	require.ErrorIs(t, err, ErrNotFound)

	bad := types.ScheduleTemplate{Name: "odd", ScheduleType: "lunar"}
	require.Error(t, db.CreateScheduleTemplate(&bad))

	require.NoError(t, db.DeleteScheduleTemplate(tmpl.ID))
	require.ErrorIs(t, db.DeleteScheduleTemplate(tmpl.ID), ErrNotFound)
}
