package dockerctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

var ErrContainerNotFound = errors.New("container not found")

const defaultSocket = "/var/run/docker.sock"

// Client drives container start/stop/restart over the local engine socket.
// It implements the actions.ContainerController interface.
type Client struct {
	http *http.Client
}

func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = defaultSocket
	}
	return &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

type container struct {
	ID    string   `json:"Id"`
	Names []string `json:"Names"`
}

// Resolve maps an id-or-name reference onto a container id. Short ids match
// by prefix, names with or without the leading slash.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://docker/containers/json?all=1", nil)
	if err != nil {
		return "", fmt.Errorf("Resolve: error building request -> %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("Resolve: engine unreachable -> %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Resolve: engine returned %d", resp.StatusCode)
	}

	var containers []container
	if err := json.NewDecoder(resp.Body).Decode(&containers); err != nil {
		return "", fmt.Errorf("Resolve: error decoding container list -> %w", err)
	}

	for _, ct := range containers {
		if strings.HasPrefix(ct.ID, ref) {
			return ct.ID, nil
		}
		for _, name := range ct.Names {
			if strings.TrimPrefix(name, "/") == ref {
				return ct.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrContainerNotFound, ref)
}

func (c *Client) post(ctx context.Context, id, op string) error {
	url := fmt.Sprintf("http://docker/containers/%s/%s", id, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("error building %s request -> %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("engine unreachable -> %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotModified:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrContainerNotFound, id)
	default:
		return fmt.Errorf("engine returned %d for %s", resp.StatusCode, op)
	}
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.post(ctx, id, "start")
}

func (c *Client) Stop(ctx context.Context, id string) error {
	return c.post(ctx, id, "stop")
}

func (c *Client) Restart(ctx context.Context, id string) error {
	return c.post(ctx, id, "restart")
}
