package browse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/rcd"
	"github.com/grabarr/grabarr/internal/store/constants"
	"github.com/grabarr/grabarr/internal/store/types"
)

// localLister enumerates the local filesystem directly, no daemon involved.
type localLister struct{}

func (localLister) List(ctx context.Context, full, rel string) ([]types.BrowseEntry, error) {
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	entries := make([]types.BrowseEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entry := types.BrowseEntry{
			Path:    filepath.Join(full, de.Name()),
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC().Format(time.RFC3339),
			IsDir:   de.IsDir(),
		}
		if de.IsDir() {
			entry.Size = 0
			entry.MimeType = "inode/directory"
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (localLister) Close(ctx context.Context) error { return nil }

// daemonLister lists through a temporary named profile on the daemon,
// rate-limited so repeated browsing does not hammer the remote.
type daemonLister struct {
	rc       rcd.Caller
	name     string
	basePath string
	limiter  *rate.Limiter
}

func newDaemonLister(ctx context.Context, rc rcd.Caller, sessionID string, remote types.Remote, cred types.CredentialData) (*daemonLister, error) {
	name := "grabarr_browse_" + sessionID

	_, err := rc.Call(ctx, "config/create", map[string]any{
		"name":       name,
		"type":       remote.Type,
		"parameters": profileParams(remote.Type, remote.Config, cred),
		"opt":        map[string]any{"obscure": true, "noOutput": true},
	})
	if err != nil {
		return nil, fmt.Errorf("newDaemonLister: %w", err)
	}

	return &daemonLister{
		rc:       rc,
		name:     name,
		basePath: basePath(remote.Type, remote.Config),
		limiter:  rate.NewLimiter(rate.Limit(constants.BrowseFallbackRate), constants.BrowseFallbackBurst),
	}, nil
}

func (l *daemonLister) List(ctx context.Context, full, rel string) ([]types.BrowseEntry, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	result, err := l.rc.Call(ctx, "operations/list", map[string]any{
		"fs":     l.name + ":" + l.basePath,
		"remote": rel,
		"opt":    map[string]any{"max_depth": 1},
	})
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	raw, _ := result["list"].([]any)
	entries := make([]types.BrowseEntry, 0, len(raw))
	for _, item := range raw {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := types.BrowseEntry{}
		entry.Path, _ = record["Path"].(string)
		entry.Name, _ = record["Name"].(string)
		if size, ok := record["Size"].(float64); ok {
			entry.Size = int64(size)
		}
		entry.ModTime, _ = record["ModTime"].(string)
		entry.IsDir, _ = record["IsDir"].(bool)
		entry.MimeType, _ = record["MimeType"].(string)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (l *daemonLister) Close(ctx context.Context) error {
	if _, err := l.rc.Call(ctx, "config/delete", map[string]any{"name": l.name}); err != nil {
		logging.L.Error(err).WithField("profile", l.name).
			WithMessage("failed to delete temporary daemon profile").Write()
		return err
	}
	return nil
}

// profileParams builds the daemon-side parameters for a temporary profile.
// Secrets go in clear here; the create call obscures them on the daemon.
func profileParams(remoteType string, config map[string]string, cred types.CredentialData) map[string]any {
	params := map[string]any{}

	switch remoteType {
	case types.RemoteLocal:
		return params

	case types.RemoteS3:
		provider := config["provider"]
		if provider == "" {
			provider = "AWS"
		}
		params["provider"] = provider
		if endpoint := config["endpoint"]; endpoint != "" {
			params["endpoint"] = endpoint
		}
		if region := config["region"]; region != "" {
			params["region"] = region
		}
		if provider != "AWS" {
			params["force_path_style"] = "true"
		}
		if cred != nil {
			if id := cred["access_key_id"]; id != "" {
				params["access_key_id"] = id
			}
			if secret := cred["secret_access_key"]; secret != "" {
				params["secret_access_key"] = secret
			}
		}
		return params

	case types.RemoteHTTP, types.RemoteWebDAV:
		params["url"] = config["url"]
		if remoteType == types.RemoteWebDAV {
			if vendor := config["vendor"]; vendor != "" {
				params["vendor"] = vendor
			}
			if cred != nil {
				if user := cred.User(); user != "" {
					params["user"] = user
				}
				if pass := cred["password"]; pass != "" {
					params["pass"] = pass
				}
			}
		}
		return params
	}

	// sftp, ftp, smb
	if host := config["host"]; host != "" {
		params["host"] = host
	}
	port := config["port"]
	if port == "" {
		port = constants.DefaultPorts[remoteType]
	}
	params["port"] = port

	if cred != nil {
		if user := cred.User(); user != "" {
			params["user"] = user
		}
		if pass := cred["password"]; pass != "" {
			params["pass"] = pass
		}
	}
	return params
}
