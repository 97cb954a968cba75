package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/grabarr/grabarr/internal/browse"
	"github.com/grabarr/grabarr/internal/config"
	"github.com/grabarr/grabarr/internal/events"
	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/proxy/controllers/actions"
	"github.com/grabarr/grabarr/internal/proxy/controllers/browsing"
	"github.com/grabarr/grabarr/internal/proxy/controllers/credentials"
	"github.com/grabarr/grabarr/internal/proxy/controllers/history"
	"github.com/grabarr/grabarr/internal/proxy/controllers/jobs"
	"github.com/grabarr/grabarr/internal/proxy/controllers/remotes"
	"github.com/grabarr/grabarr/internal/proxy/controllers/settings"
	"github.com/grabarr/grabarr/internal/proxy/controllers/stream"
	mw "github.com/grabarr/grabarr/internal/proxy/middlewares"
	"github.com/grabarr/grabarr/internal/runner"
	"github.com/grabarr/grabarr/internal/scheduler"
	"github.com/grabarr/grabarr/internal/store"
)

var Version = "v0.0.0"

// Deps bundles everything the API surface reaches into.
type Deps struct {
	Store    *store.Store
	Runner   *runner.Runner
	Sched    *scheduler.Scheduler
	Sessions *browse.Manager
	Broker   *events.Broker
}

// NewMux builds the full route table.
func NewMux(cfg *config.Config, d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	cors := func(next http.HandlerFunc) http.HandlerFunc {
		return mw.CORS(cfg.CORSOrigin, next)
	}

	mux.HandleFunc("/api/jobs", cors(jobsDispatch(d)))
	mux.HandleFunc("/api/jobs/{job}", cors(jobs.JobSingleHandler(d.Store, d.Sched)))
	mux.HandleFunc("/api/jobs/{job}/run", cors(jobs.JobRunHandler(d.Runner)))
	mux.HandleFunc("/api/jobs/{job}/stop", cors(jobs.JobStopHandler(d.Runner)))
	mux.HandleFunc("/api/jobs/{job}/embed-key", cors(jobs.JobEmbedKeyHandler(d.Store)))
	mux.HandleFunc("/api/jobs/{job}/history", cors(history.JobHistoryHandler(d.Store)))
	mux.HandleFunc("/api/jobs/{job}/actions", cors(actions.JobBindingsHandler(d.Store)))
	mux.HandleFunc("/api/jobs/{job}/actions/{binding}", cors(actions.JobBindingSingleHandler(d.Store)))

	mux.HandleFunc("/api/remotes", cors(remotes.RemotesHandler(d.Store)))
	mux.HandleFunc("/api/remotes/{remote}", cors(remotes.RemoteSingleHandler(d.Store)))
	mux.HandleFunc("/api/remotes/{remote}/browse", cors(browsing.SessionCreateHandler(d.Store, d.Sessions)))
	mux.HandleFunc("/api/browse/{session}", cors(browsing.SessionHandler(d.Sessions)))

	mux.HandleFunc("/api/credentials", cors(credentials.CredentialsHandler(d.Store)))
	mux.HandleFunc("/api/credentials/{credential}", cors(credentials.CredentialSingleHandler(d.Store)))

	mux.HandleFunc("/api/actions", cors(actions.ActionsHandler(d.Store)))
	mux.HandleFunc("/api/actions/{action}", cors(actions.ActionSingleHandler(d.Store)))

	mux.HandleFunc("/api/settings", cors(settings.SettingsHandler(d.Store)))
	mux.HandleFunc("/api/settings/{key}", cors(settings.SettingSingleHandler(d.Store)))
	mux.HandleFunc("/api/schedule-templates", cors(settings.TemplatesHandler(d.Store, d.Sched)))
	mux.HandleFunc("/api/schedule-templates/{template}", cors(settings.TemplateSingleHandler(d.Store, d.Sched)))

	mux.HandleFunc("/api/events", cors(stream.EventsHandler(d.Broker)))
	mux.HandleFunc("/api/version", cors(versionHandler()))

	return mux
}

// jobsDispatch splits the collection route by method; create needs the
// scheduler, listing does not.
func jobsDispatch(d Deps) http.HandlerFunc {
	list := jobs.JobsHandler(d.Store)
	create := jobs.JobCreateHandler(d.Store, d.Sched)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			create(w, r)
			return
		}
		list(w, r)
	}
}

func versionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"version":%q}`, Version)
	}
}

// StartServer runs the API until ctx is cancelled, then drains connections.
func StartServer(ctx context.Context, cfg *config.Config, d Deps) error {
	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      NewMux(cfg, d),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logging.L.Info().WithMessage(fmt.Sprintf("starting API server on %s", cfg.Address)).Write()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
