package runner

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/grabarr/grabarr/internal/actions"
	"github.com/grabarr/grabarr/internal/events"
	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/rcd"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/constants"
	"github.com/grabarr/grabarr/internal/store/sqlite"
	"github.com/grabarr/grabarr/internal/store/types"
)

// Sentinel error values.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrRemoteNotFound   = errors.New("source or destination remote not found")
	ErrDispatchFailed   = errors.New("transfer dispatch rejected by daemon")
	ErrPreActionAborted = errors.New("pre-trigger action failed and abort is enabled")
)

// Execution types, recorded on the history snapshot for audit only.
const (
	ExecManual   = "manual"
	ExecAPI      = "api"
	ExecSchedule = "schedule"
)

// Run status values.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// jobState is the per-job admission record. The mutex makes the
// check-and-increment atomic; concurrent RunJob calls for the same id cannot
// both slip past the limit.
type jobState struct {
	mu          sync.Mutex
	running     int
	lastFailure time.Time
}

// run is the state one monitor task owns for one dispatched transfer.
type run struct {
	jobID    int64
	handle   int64
	snapshot *types.JobSnapshot
	started  time.Time

	totalBytes int64
	files      map[string]struct{}
	lastStats  map[string]any

	ctx    context.Context
	cancel context.CancelFunc
}

// Runner is the job execution engine: admission control, transfer dispatch,
// progress monitoring, history recording and action-pipeline invocation.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc

	store    *store.Store
	rc       rcd.Caller
	resolver *rcd.Resolver
	pipeline *actions.Pipeline
	broker   *events.Broker

	states  *xsync.MapOf[int64, *jobState]
	handles *xsync.MapOf[int64, *run]

	pollInterval time.Duration
	stopGrace    time.Duration

	wg sync.WaitGroup
}

type Option func(*Runner)

// WithPollInterval overrides the monitor poll interval. Tests shorten it.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.pollInterval = d }
}

func WithStopGrace(d time.Duration) Option {
	return func(r *Runner) { r.stopGrace = d }
}

func NewRunner(ctx context.Context, st *store.Store, rc rcd.Caller, pipeline *actions.Pipeline, broker *events.Broker, opts ...Option) *Runner {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Runner{
		ctx:          runCtx,
		cancel:       cancel,
		store:        st,
		rc:           rc,
		resolver:     rcd.NewResolver(rc, func() rcd.S3Tuning { return rcd.S3Tuning(st.S3()) }),
		pipeline:     pipeline,
		broker:       broker,
		states:       xsync.NewMapOf[int64, *jobState](),
		handles:      xsync.NewMapOf[int64, *run](),
		pollInterval: constants.MonitorPollInterval,
		stopGrace:    constants.StopGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close cancels every monitor task and waits for them to drain.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) state(jobID int64) *jobState {
	st, _ := r.states.LoadOrStore(jobID, &jobState{})
	return st
}

// ActiveCount reports how many instances of the job are currently running.
func (r *Runner) ActiveCount(jobID int64) int {
	st := r.state(jobID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

// tryAdmit applies the concurrency policy and the failure cooldown atomically.
// A false return is a silent skip, never a failure.
func (r *Runner) tryAdmit(job types.Job) bool {
	cooldown := time.Duration(r.store.FailureCooldownSeconds()) * time.Second

	st := r.state(job.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !job.AllowConcurrentRuns && st.running > 0 {
		logging.L.Info().WithJob(job.ID).
			WithMessage("skipped: already running and concurrent runs disabled").Write()
		return false
	}
	if job.AllowConcurrentRuns && st.running >= job.MaxConcurrentRuns {
		logging.L.Info().WithJob(job.ID).
			WithField("max", job.MaxConcurrentRuns).
			WithMessage("skipped: max concurrent runs reached").Write()
		return false
	}
	if !st.lastFailure.IsZero() {
		if elapsed := time.Since(st.lastFailure); elapsed < cooldown {
			logging.L.Info().WithJob(job.ID).
				WithField("remaining", (cooldown - elapsed).Round(time.Second).String()).
				WithMessage("skipped: in failure cooldown").Write()
			return false
		}
	}

	st.running++
	return true
}

func (r *Runner) release(jobID int64, failed bool) {
	st := r.state(jobID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.running > 0 {
		st.running--
	}
	if failed {
		st.lastFailure = time.Now()
	} else {
		st.lastFailure = time.Time{}
	}
}

// RunJob loads, admits and dispatches one transfer, then hands off to a
// monitor task. Admission skips return nil with no history row.
func (r *Runner) RunJob(ctx context.Context, jobID int64, executionType string) error {
	job, err := r.store.Database.GetJob(jobID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("RunJob: %w", err)
	}

	if !r.tryAdmit(job) {
		return nil
	}

	logging.L.Info().WithJob(jobID).
		WithField("executionType", executionType).
		WithMessage("starting job").Write()

	if err := r.dispatch(ctx, job, executionType); err != nil {
		r.release(jobID, false)
		r.logFailedSetup(jobID, err)
		return err
	}
	return nil
}

// dispatch performs steps 4-9: resolution, address building, pre actions,
// parameter assembly, size pre-compute and the async start call.
func (r *Runner) dispatch(ctx context.Context, job types.Job, executionType string) error {
	source, err := r.store.Database.GetRemote(job.SourceRemoteID)
	if err != nil {
		return fmt.Errorf("%w: source %d", ErrRemoteNotFound, job.SourceRemoteID)
	}
	dest, err := r.store.Database.GetRemote(job.DestRemoteID)
	if err != nil {
		return fmt.Errorf("%w: destination %d", ErrRemoteNotFound, job.DestRemoteID)
	}

	_, sourceCred, err := r.store.ResolveCredential(source.CredentialID)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	_, destCred, err := r.store.ResolveCredential(dest.CredentialID)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	srcFs, err := r.resolver.FsString(ctx, source, sourceCred)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	dstFs, err := r.resolver.FsString(ctx, dest, destCred)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	srcFs, dstFs = applyPaths(job, srcFs, dstFs)

	tctx := templateContext(job, source, dest, executionType)
	if preErr := r.pipeline.Execute(ctx, job.ID, types.TriggerPre, tctx); preErr != nil {
		if r.store.PreActionAbort() {
			return fmt.Errorf("%w: %s", ErrPreActionAborted, preErr)
		}
		// Logged inside the pipeline; the run proceeds.
	}

	params := r.transferParams(job, srcFs, dstFs)

	// Best-effort total for progress percentages. Failure never blocks the run.
	var totalBytes int64
	sizeParams := map[string]any{"fs": srcFs}
	if len(job.Excludes) > 0 {
		sizeParams["_filter"] = map[string]any{"ExcludeRule": job.Excludes}
	}
	if sizeRes, err := r.rc.Call(ctx, "operations/size", sizeParams); err != nil {
		logging.L.Error(err).WithJob(job.ID).
			WithMessage("failed to pre-compute transfer size").Write()
	} else if bytes, ok := sizeRes["bytes"].(float64); ok {
		totalBytes = int64(bytes)
	}

	result, err := r.rc.Call(ctx, "sync/"+job.Operation, params)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDispatchFailed, err)
	}
	rawHandle, ok := result["jobid"].(float64)
	if !ok {
		return fmt.Errorf("%w: no job handle in response", ErrDispatchFailed)
	}
	handle := int64(rawHandle)

	now := time.Now().UTC()
	if err := r.store.Database.UpdateJobStatus(job.ID, StatusRunning, "", &now); err != nil {
		logging.L.Error(err).WithJob(job.ID).WithMessage("failed to mark job running").Write()
	}
	r.broker.Publish(events.JobUpdate(job.ID, StatusRunning, ""))

	snapshot := r.buildSnapshot(job, source, dest, executionType)

	monCtx, monCancel := context.WithCancel(r.ctx)
	active := &run{
		jobID:      job.ID,
		handle:     handle,
		snapshot:   snapshot,
		started:    now,
		totalBytes: totalBytes,
		files:      map[string]struct{}{},
		ctx:        monCtx,
		cancel:     monCancel,
	}
	r.handles.Store(job.ID, active)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.monitor(active, tctx)
	}()

	logging.L.Info().WithJob(job.ID).
		WithField("handle", handle).
		WithField("src", srcFs).
		WithField("dst", dstFs).
		WithMessage("transfer dispatched").Write()
	return nil
}

// dropHandle removes the tracked run only if it is still the one registered
// for the job. A newer dispatch for the same job keeps its own entry.
func (r *Runner) dropHandle(active *run) {
	r.handles.Compute(active.jobID, func(current *run, loaded bool) (*run, bool) {
		return current, !loaded || current == active
	})
}

// StopJob requests daemon-side cancellation for the tracked handle and signals
// the monitor's token. The terminal state is still observed and recorded by
// the monitor, not here.
func (r *Runner) StopJob(ctx context.Context, jobID int64) {
	active, ok := r.handles.Load(jobID)
	if !ok {
		return
	}

	logging.L.Info().WithJob(jobID).
		WithField("handle", active.handle).
		WithMessage("stopping job").Write()

	if _, err := r.rc.Call(ctx, "job/stop", map[string]any{"jobid": active.handle}); err != nil {
		logging.L.Error(err).WithJob(jobID).WithMessage("failed to request stop").Write()
	}
	active.cancel()
}

// logFailedSetup records a setup or dispatch failure as an immediate failed
// history row. No transfer was attempted.
func (r *Runner) logFailedSetup(jobID int64, runErr error) {
	now := time.Now().UTC()
	entry := &types.JobHistory{
		JobID:       jobID,
		Status:      StatusFailed,
		Details:     map[string]any{"error": runErr.Error()},
		CompletedAt: &now,
	}
	if err := r.store.Database.CreateHistory(entry, r.store.MaxHistoryEntries()); err != nil {
		logging.L.Error(err).WithJob(jobID).WithMessage("failed to write job history").Write()
	}
	if err := r.store.Database.UpdateJobStatus(jobID, StatusFailed, runErr.Error(), nil); err != nil {
		logging.L.Error(err).WithJob(jobID).WithMessage("failed to update job status").Write()
	}
}

// applyPaths suffixes the job sub-paths and applies copy_mode: contents copies
// only the children of the source directory, folder carries the directory
// itself into the destination.
func applyPaths(job types.Job, srcFs, dstFs string) (string, string) {
	if job.SourcePath != "" {
		srcFs = strings.TrimRight(srcFs, "/") + "/" + strings.Trim(job.SourcePath, "/")
	}
	if job.DestPath != "" {
		dstFs = strings.TrimRight(dstFs, "/") + "/" + strings.Trim(job.DestPath, "/")
	}

	switch job.CopyMode {
	case types.CopyModeContents:
		srcFs = strings.TrimRight(srcFs, "/") + "/"
	case types.CopyModeFolder:
		if job.SourcePath != "" {
			if folder := path.Base(strings.Trim(job.SourcePath, "/")); folder != "" && folder != "." {
				dstFs = strings.TrimRight(dstFs, "/") + "/" + folder
			}
		}
	}
	return srcFs, dstFs
}

// transferParams assembles the daemon-side tuning for one dispatch. Backend
// chunk tuning is absent on purpose: it lives in the connection string.
func (r *Runner) transferParams(job types.Job, srcFs, dstFs string) map[string]any {
	tuning := r.store.Tuning()

	config := map[string]any{
		"Transfers":          tuning.Transfers,
		"Checkers":           tuning.Checkers,
		"BufferSize":         tuning.BufferSize,
		"MultiThreadCutoff":  tuning.MultiThreadCutoff,
		"MultiThreadStreams": tuning.MultiThreadStreams,
	}
	if job.Sequential {
		// Single stream end to end.
		config["Transfers"] = 1
		config["MultiThreadStreams"] = 0
	}
	if job.UseChecksum {
		config["CheckSum"] = true
	}
	if job.PreserveMetadata {
		config["Metadata"] = true
	}
	if job.TransferMethod == types.TransferProxy {
		config["ServerSideAcrossConfigs"] = false
		config["DisableHTTP2"] = true
	}

	params := map[string]any{
		"srcFs":   srcFs,
		"dstFs":   dstFs,
		"_async":  true,
		"_config": config,
	}
	if len(job.Excludes) > 0 {
		params["_filter"] = map[string]any{"ExcludeRule": job.Excludes}
	}
	return params
}

func (r *Runner) buildSnapshot(job types.Job, source, dest types.Remote, executionType string) *types.JobSnapshot {
	scheduleName := types.ScheduleManual
	var scheduleID *int64
	if job.Schedule != "" && job.Schedule != types.ScheduleManual {
		if tmpl, err := r.store.Database.GetScheduleTemplateByName(job.Schedule); err == nil {
			scheduleName = tmpl.Name
			scheduleID = &tmpl.ID
		} else {
			// A raw cron expression, used as-is.
			scheduleName = job.Schedule
		}
	}

	return &types.JobSnapshot{
		Name:                job.Name,
		Operation:           job.Operation,
		SourceRemoteID:      job.SourceRemoteID,
		SourceRemoteName:    source.Name,
		DestRemoteID:        job.DestRemoteID,
		DestRemoteName:      dest.Name,
		SourcePath:          job.SourcePath,
		DestPath:            job.DestPath,
		TransferMethod:      job.TransferMethod,
		CopyMode:            job.CopyMode,
		Excludes:            job.Excludes,
		ScheduleName:        scheduleName,
		ScheduleID:          scheduleID,
		AllowConcurrentRuns: job.AllowConcurrentRuns,
		MaxConcurrentRuns:   job.MaxConcurrentRuns,
		UseChecksum:         job.UseChecksum,
		ExecutionType:       executionType,
	}
}

func templateContext(job types.Job, source, dest types.Remote, executionType string) map[string]any {
	return map[string]any{
		"job": map[string]any{
			"id":          job.ID,
			"name":        job.Name,
			"operation":   job.Operation,
			"source_path": job.SourcePath,
			"dest_path":   job.DestPath,
			"source":      source.Name,
			"dest":        dest.Name,
		},
		"execution_type": executionType,
	}
}
