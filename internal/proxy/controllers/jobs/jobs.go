package jobs

import (
	"context"
	"net/http"
	"strconv"

	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/proxy/controllers"
	"github.com/grabarr/grabarr/internal/runner"
	"github.com/grabarr/grabarr/internal/scheduler"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
	"github.com/grabarr/grabarr/internal/utils"
)

func jobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("job"), 10, 64)
}

func JobsHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		allJobs, err := storeInstance.Database.GetAllJobs()
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}

		digest, err := utils.CalculateDigest(allJobs)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}

		controllers.WriteJSON(w, http.StatusOK, JobsResponse{
			Data:   allJobs,
			Digest: digest,
		})
	}
}

func JobCreateHandler(storeInstance *store.Store, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		var job types.Job
		if err := controllers.ReadJSON(r, &job); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := storeInstance.Database.CreateJob(nil, &job); err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}

		if err := sched.Sync(); err != nil {
			logging.L.Error(err).WithJob(job.ID).WithMessage("schedule sync failed").Write()
		}

		controllers.WriteJSON(w, http.StatusOK, JobConfigResponse{
			Status:  http.StatusOK,
			Success: true,
			Data:    job,
		})
	}
}

func JobSingleHandler(storeInstance *store.Store, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := jobID(r)
		if err != nil {
			http.Error(w, "Invalid job id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			job, err := storeInstance.Database.GetJob(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, JobConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    job,
			})

		case http.MethodPut:
			var job types.Job
			if err := controllers.ReadJSON(r, &job); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			job.ID = id
			if err := storeInstance.Database.UpdateJob(job); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			if err := sched.Sync(); err != nil {
				logging.L.Error(err).WithJob(id).WithMessage("schedule sync failed").Write()
			}
			controllers.WriteJSON(w, http.StatusOK, JobConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    job,
			})

		case http.MethodDelete:
			if err := storeInstance.Database.DeleteJob(id); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			sched.Remove(id)
			controllers.WriteJSON(w, http.StatusOK, JobRunResponse{
				Status:  http.StatusOK,
				Success: true,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

// JobRunHandler kicks off one run and returns immediately; progress arrives
// on the event stream.
func JobRunHandler(engine *runner.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		id, err := jobID(r)
		if err != nil {
			http.Error(w, "Invalid job id", http.StatusBadRequest)
			return
		}

		go func() {
			if err := engine.RunJob(context.Background(), id, runner.ExecAPI); err != nil {
				logging.L.Error(err).WithJob(id).WithMessage("run failed").Write()
			}
		}()

		controllers.WriteJSON(w, http.StatusAccepted, JobRunResponse{
			Status:  http.StatusAccepted,
			Success: true,
		})
	}
}

func JobStopHandler(engine *runner.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		id, err := jobID(r)
		if err != nil {
			http.Error(w, "Invalid job id", http.StatusBadRequest)
			return
		}

		engine.StopJob(r.Context(), id)
		controllers.WriteJSON(w, http.StatusOK, JobRunResponse{
			Status:  http.StatusOK,
			Success: true,
		})
	}
}

// JobEmbedKeyHandler rotates the status-embedding secret.
func JobEmbedKeyHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		id, err := jobID(r)
		if err != nil {
			http.Error(w, "Invalid job id", http.StatusBadRequest)
			return
		}

		key, err := storeInstance.Database.RotateEmbedKey(id)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, http.StatusOK, EmbedKeyResponse{
			Status:   http.StatusOK,
			Success:  true,
			EmbedKey: key,
		})
	}
}
