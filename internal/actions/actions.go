package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/rcd"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

var (
	// ErrCommandDisabled is returned for every "command" action. Arbitrary
	// shell execution is permanently off; the tag survives only so old
	// configurations still load.
	ErrCommandDisabled = errors.New("command actions are disabled for security")

	ErrDockerUnavailable = errors.New("container control is not available")
)

// ContainerController is the container lifecycle collaborator the docker
// action drives. Resolve maps an id-or-name reference onto a container id.
type ContainerController interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
}

// Pipeline executes a job's ordered, triggerable side-effects.
type Pipeline struct {
	store  *store.Store
	rc     rcd.Caller
	docker ContainerController
	http   *http.Client
}

func NewPipeline(st *store.Store, rc rcd.Caller, docker ContainerController) *Pipeline {
	return &Pipeline{
		store:  st,
		rc:     rc,
		docker: docker,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Execute runs every action bound to the job at the given trigger, ordered
// ascending. A failing action is logged and does not stop the ones after it;
// the first error is returned so pre-trigger callers can opt into aborting.
func (p *Pipeline) Execute(ctx context.Context, jobID int64, trigger string, tctx map[string]any) error {
	bindings, err := p.store.Database.GetJobActions(jobID, trigger)
	if err != nil {
		return fmt.Errorf("Execute: %w", err)
	}

	var firstErr error
	for _, binding := range bindings {
		if err := p.processAction(ctx, binding.Action, tctx); err != nil {
			logging.L.Error(err).
				WithJob(jobID).
				WithField("action", binding.Action.Name).
				WithField("trigger", trigger).
				WithMessage("action failed").Write()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Pipeline) processAction(ctx context.Context, action *types.Action, tctx map[string]any) error {
	switch action.Type {
	case types.ActionWebhook:
		return p.runWebhook(ctx, action.Config, tctx)
	case types.ActionDelay:
		return p.runDelay(ctx, action.Config)
	case types.ActionRclone:
		return p.runRclone(ctx, action.Config, tctx)
	case types.ActionDocker:
		return p.runDocker(ctx, action.Config)
	case types.ActionNotification:
		return p.runNotification(ctx, action.Config, tctx)
	case types.ActionCommand:
		return ErrCommandDisabled
	}
	return fmt.Errorf("unknown action type: %s", action.Type)
}

func (p *Pipeline) runWebhook(ctx context.Context, raw json.RawMessage, tctx map[string]any) error {
	var cfg types.WebhookConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("runWebhook: invalid config -> %w", err)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	url := Substitute(cfg.URL, tctx)
	body := Substitute(cfg.Body, tctx)

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("runWebhook: error building request -> %w", err)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, Substitute(v, tctx))
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("runWebhook: request failed -> %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("runWebhook: %s returned %d", url, resp.StatusCode)
	}
	return nil
}

// runDelay suspends the pipeline. This is the only blocking step an action
// sequence can contain.
func (p *Pipeline) runDelay(ctx context.Context, raw json.RawMessage) error {
	var cfg types.DelayConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("runDelay: invalid config -> %w", err)
	}

	timer := time.NewTimer(time.Duration(cfg.Seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pipeline) runRclone(ctx context.Context, raw json.RawMessage, tctx map[string]any) error {
	var cfg types.RcloneConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("runRclone: invalid config -> %w", err)
	}

	command := Substitute(cfg.Command, tctx)

	params := map[string]any{}
	if len(cfg.Params) > 0 {
		substituted := Substitute(string(cfg.Params), tctx)
		if err := json.Unmarshal([]byte(substituted), &params); err != nil {
			return fmt.Errorf("runRclone: invalid params after substitution -> %w", err)
		}
	}

	if _, err := p.rc.Call(ctx, command, params); err != nil {
		return fmt.Errorf("runRclone: %s -> %w", command, err)
	}
	return nil
}

func (p *Pipeline) runDocker(ctx context.Context, raw json.RawMessage) error {
	var cfg types.DockerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("runDocker: invalid config -> %w", err)
	}
	if p.docker == nil {
		return ErrDockerUnavailable
	}

	id, err := p.docker.Resolve(ctx, cfg.Container)
	if err != nil {
		return fmt.Errorf("runDocker: %w", err)
	}

	switch cfg.Operation {
	case types.ContainerStart:
		err = p.docker.Start(ctx, id)
	case types.ContainerStop:
		err = p.docker.Stop(ctx, id)
	case types.ContainerRestart:
		err = p.docker.Restart(ctx, id)
	default:
		return fmt.Errorf("runDocker: invalid operation: %s", cfg.Operation)
	}
	if err != nil {
		return fmt.Errorf("runDocker: %s %s -> %w", cfg.Operation, cfg.Container, err)
	}
	return nil
}

// runNotification posts a substituted message to the configured target; it is
// a best-effort no-op when no URL is set anywhere.
func (p *Pipeline) runNotification(ctx context.Context, raw json.RawMessage, tctx map[string]any) error {
	var cfg types.NotificationConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("runNotification: invalid config -> %w", err)
	}

	url := cfg.URL
	if url == "" {
		url = p.store.NotificationURL()
	}
	if url == "" {
		return nil
	}

	message := Substitute(cfg.Message, tctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("runNotification: error building request -> %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("runNotification: request failed -> %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("runNotification: %s returned %d", url, resp.StatusCode)
	}
	return nil
}
