package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/grabarr/grabarr/internal/events"
	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/store/types"
)

// maxPollFailures bounds how long a monitor keeps polling a daemon that has
// stopped answering before it gives the run up as failed.
const maxPollFailures = 10

// monitor polls the daemon for one dispatched transfer until it reaches a
// terminal state, then records history and fires the post triggers. It is the
// only writer of the run's terminal state.
func (r *Runner) monitor(active *run, tctx map[string]any) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	group := fmt.Sprintf("job/%d", active.handle)
	pollFailures := 0
	var stopDeadline time.Time

	for {
		if active.ctx.Err() != nil && stopDeadline.IsZero() {
			stopDeadline = time.Now().Add(r.stopGrace)
		}
		if !stopDeadline.IsZero() && time.Now().After(stopDeadline) {
			r.finalize(active, tctx, StatusFailed,
				"stop requested but the transfer did not terminate in time", nil)
			return
		}

		status, err := r.rc.Call(r.ctx, "job/status", map[string]any{"jobid": active.handle})
		if err != nil {
			if r.ctx.Err() != nil {
				// Engine shutdown, not a daemon fault. The run is abandoned, not failed.
				r.release(active.jobID, false)
				r.dropHandle(active)
				return
			}
			pollFailures++
			if pollFailures >= maxPollFailures {
				r.finalize(active, tctx, StatusFailed,
					fmt.Sprintf("lost contact with transfer daemon: %s", err), nil)
				return
			}
		} else {
			pollFailures = 0
			if finished, _ := status["finished"].(bool); finished {
				finalStatus := StatusSuccess
				errMsg := ""
				if success, _ := status["success"].(bool); !success {
					finalStatus = StatusFailed
					errMsg, _ = status["error"].(string)
					if errMsg == "" {
						errMsg = "transfer failed"
					}
				}
				r.finalize(active, tctx, finalStatus, errMsg, status)
				return
			}
			r.pollStats(active, group)
		}

		select {
		case <-ticker.C:
		case <-r.ctx.Done():
			// Engine shutdown, not a user stop. The run is abandoned, not failed.
			r.release(active.jobID, false)
			r.dropHandle(active)
			return
		}
	}
}

// pollStats reads live counters for the run's stats group, folds in the
// pre-computed total and remembers every file name seen in flight.
func (r *Runner) pollStats(active *run, group string) {
	stats, err := r.rc.Call(r.ctx, "core/stats", map[string]any{"group": group})
	if err != nil {
		logging.L.Error(err).WithJob(active.jobID).WithMessage("stats poll failed").Write()
		return
	}

	if reported, _ := stats["totalBytes"].(float64); reported <= 0 && active.totalBytes > 0 {
		stats["totalBytes"] = active.totalBytes
	}
	if transferring, ok := stats["transferring"].([]any); ok {
		for _, item := range transferring {
			if entry, ok := item.(map[string]any); ok {
				if name, ok := entry["name"].(string); ok && name != "" {
					active.files[name] = struct{}{}
				}
			}
		}
	}
	// Short transfers can start and finish between polls; lastFile is the only
	// trace the daemon keeps of those.
	if last, ok := stats["lastFile"].(string); ok && last != "" {
		active.files[last] = struct{}{}
	}
	active.lastStats = stats

	r.broker.Publish(events.Progress(active.jobID, stats))
}

// finalize records the terminal state exactly once: slot release, cooldown
// bookkeeping, history row, post triggers, final event.
func (r *Runner) finalize(active *run, tctx map[string]any, finalStatus, errMsg string, payload map[string]any) {
	active.cancel()
	r.dropHandle(active)
	r.release(active.jobID, finalStatus == StatusFailed)

	now := time.Now().UTC()
	if err := r.store.Database.UpdateJobStatus(active.jobID, finalStatus, errMsg, nil); err != nil {
		logging.L.Error(err).WithJob(active.jobID).WithMessage("failed to update job status").Write()
	}

	files := make([]string, 0, len(active.files))
	for name := range active.files {
		files = append(files, name)
	}
	sort.Strings(files)

	entry := &types.JobHistory{
		JobID:            active.jobID,
		Status:           finalStatus,
		Details:          payload,
		AvgSpeed:         averageSpeed(active),
		FilesTransferred: files,
		JobSnapshot:      active.snapshot,
		StartedAt:        &active.started,
		CompletedAt:      &now,
	}
	if payload == nil && errMsg != "" {
		entry.Details = map[string]any{"error": errMsg}
	}
	if err := r.store.Database.CreateHistory(entry, r.store.MaxHistoryEntries()); err != nil {
		logging.L.Error(err).WithJob(active.jobID).WithMessage("failed to write job history").Write()
	}

	tctx["status"] = finalStatus
	tctx["error"] = errMsg
	if active.lastStats != nil {
		tctx["stats"] = active.lastStats
	}

	// Triggers run on the monitor goroutine; a slow webhook never blocks the
	// next run because the slot is already released.
	actionCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := r.pipeline.Execute(actionCtx, active.jobID, types.TriggerPostAlways, tctx); err != nil {
		logging.L.Error(err).WithJob(active.jobID).WithMessage("post_always actions failed").Write()
	}
	trigger := types.TriggerPostSuccess
	if finalStatus == StatusFailed {
		trigger = types.TriggerPostFail
	}
	if err := r.pipeline.Execute(actionCtx, active.jobID, trigger, tctx); err != nil {
		logging.L.Error(err).WithJob(active.jobID).WithMessage("post actions failed").Write()
	}

	r.broker.Publish(events.JobUpdate(active.jobID, finalStatus, errMsg))

	logging.L.Info().WithJob(active.jobID).
		WithField("status", finalStatus).
		WithField("duration", now.Sub(active.started).Round(time.Second).String()).
		WithMessage("job finished").Write()
}

// averageSpeed prefers the daemon's own measurement, falling back to a
// bytes-over-elapsed estimate.
func averageSpeed(active *run) *int64 {
	if active.lastStats == nil {
		return nil
	}
	if speed, ok := active.lastStats["speed"].(float64); ok && speed > 0 {
		v := int64(speed)
		return &v
	}
	bytes, ok := active.lastStats["bytes"].(float64)
	if !ok || bytes <= 0 {
		return nil
	}
	elapsed := time.Since(active.started).Seconds()
	if elapsed <= 0 {
		return nil
	}
	v := int64(bytes / elapsed)
	return &v
}
