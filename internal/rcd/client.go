package rcd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/store/constants"
	"github.com/grabarr/grabarr/internal/utils"
)

var (
	ErrDaemonNotRunning = errors.New("transfer daemon is not running")
	ErrCallFailed       = errors.New("transfer daemon call failed")
)

// Caller is the single RPC primitive the rest of the system consumes. Tests
// substitute a fake.
type Caller interface {
	Call(ctx context.Context, command string, params map[string]any) (map[string]any, error)
}

// Client supervises the external rclone rcd process and speaks its JSON RPC
// dialect over localhost with basic auth.
type Client struct {
	addr    string
	user    string
	pass    string
	binary  string
	timeout time.Duration
	http    *http.Client
	process *exec.Cmd
	dataDir string
}

type Option func(*Client)

func WithAddress(addr string) Option {
	return func(c *Client) { c.addr = addr }
}

func WithBinary(path string) Option {
	return func(c *Client) { c.binary = path }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient prepares a client bound to dataDir. Auth credentials are generated
// once and persisted so daemon restarts keep working URLs in flight.
func NewClient(dataDir string, opts ...Option) (*Client, error) {
	c := &Client{
		addr:    constants.RcdAddress,
		binary:  "rclone",
		timeout: constants.RcdCallTimeout,
		dataDir: dataDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = &http.Client{Timeout: c.timeout}

	user, pass, err := loadOrCreateAuth(filepath.Join(dataDir, constants.RcdAuthFileName))
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	c.user = user
	c.pass = pass
	return c, nil
}

func loadOrCreateAuth(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
		return "", "", fmt.Errorf("loadOrCreateAuth: malformed auth file %s", path)
	}
	if !os.IsNotExist(err) {
		return "", "", fmt.Errorf("loadOrCreateAuth: error reading auth file -> %w", err)
	}

	user, err := utils.GenerateSecretKey(12)
	if err != nil {
		return "", "", err
	}
	pass, err := utils.GenerateSecretKey(24)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(path, []byte(user+":"+pass+"\n"), 0o600); err != nil {
		return "", "", fmt.Errorf("loadOrCreateAuth: error writing auth file -> %w", err)
	}
	return user, pass, nil
}

// StartDaemon spawns rclone rcd bound to the local-only address. The process
// dies with us via Stop.
func (c *Client) StartDaemon(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.binary, "rcd",
		"--rc-addr", c.addr,
		"--rc-user", c.user,
		"--rc-pass", c.pass,
	)
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("StartDaemon: error starting %s -> %w", c.binary, err)
	}
	c.process = cmd

	logging.L.Info().
		WithField("addr", c.addr).
		WithField("pid", cmd.Process.Pid).
		WithMessage("transfer daemon started").Write()

	// Give the daemon a moment to bind before the first call lands.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(constants.RcdStartupWait):
	}
	return nil
}

func (c *Client) StopDaemon() {
	if c.process == nil || c.process.Process == nil {
		return
	}
	if err := c.process.Process.Kill(); err != nil {
		logging.L.Error(err).WithMessage("failed to terminate transfer daemon").Write()
	}
	_ = c.process.Wait()
	c.process = nil
}

// Call issues one authenticated JSON RPC. Timeouts and HTTP failures are
// logged with command context and returned untouched; retry policy belongs to
// the caller.
func (c *Client) Call(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("Call: error encoding params for %s -> %w", command, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := "http://" + c.addr + "/" + strings.TrimPrefix(command, "/")
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Call: error building request for %s -> %w", command, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.pass)

	resp, err := c.http.Do(req)
	if err != nil {
		logging.L.Error(err).WithField("command", command).
			WithMessage("transfer daemon call failed").Write()
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.L.Error(err).WithField("command", command).
			WithMessage("transfer daemon response unreadable").Write()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s returned %d: %s",
			ErrCallFailed, command, resp.StatusCode, strings.TrimSpace(string(raw)))
		logging.L.Error(err).WithField("command", command).Write()
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("Call: error decoding %s response -> %w", command, err)
	}
	return result, nil
}
