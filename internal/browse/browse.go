package browse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/rcd"
	"github.com/grabarr/grabarr/internal/store/constants"
	"github.com/grabarr/grabarr/internal/store/types"
)

var ErrSessionNotFound = errors.New("browse session not found or expired")

// lister is one listing strategy, picked once when the session is created.
// full is the composed absolute path, rel the caller-supplied path fragment;
// the daemon fallback addresses entries relative to its profile's base.
type lister interface {
	List(ctx context.Context, full, rel string) ([]types.BrowseEntry, error)
	Close(ctx context.Context) error
}

type session struct {
	id       string
	remoteID int64
	basePath string
	lister   lister
}

// Manager holds live browse sessions. The cache owns the idle timeout: reads
// refresh the TTL, eviction closes the connection and deletes any temporary
// daemon profile.
type Manager struct {
	rc          rcd.Caller
	idleTimeout time.Duration
	sessions    *ttlcache.Cache[string, *session]
}

type Option func(*Manager)

// WithIdleTimeout overrides the session idle TTL. Tests shorten it.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

func NewManager(rc rcd.Caller, opts ...Option) *Manager {
	m := &Manager{rc: rc, idleTimeout: constants.SessionIdleTimeout}
	for _, opt := range opts {
		opt(m)
	}
	m.sessions = ttlcache.New[string, *session](
		ttlcache.WithTTL[string, *session](m.idleTimeout),
	)
	m.sessions.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *session]) {
		s := item.Value()
		if err := s.lister.Close(context.Background()); err != nil {
			logging.L.Error(err).WithField("session", s.id).
				WithMessage("failed to close browse session").Write()
		}
		logging.L.Info().WithField("session", s.id).WithMessage("browse session closed").Write()
	})
	go m.sessions.Start()
	return m
}

// Close ends every live session and stops the expiry loop.
func (m *Manager) Close() {
	m.sessions.DeleteAll()
	m.sessions.Stop()
}

// Create opens a session for the remote, trying strategies in order: a direct
// SSH connection when the backend speaks it and credentials exist, then a
// temporary daemon profile, with plain filesystem enumeration for local.
func (m *Manager) Create(ctx context.Context, remote types.Remote, cred types.CredentialData) (string, error) {
	id := uuid.NewString()[:8]

	s := &session{
		id:       id,
		remoteID: remote.ID,
		basePath: basePath(remote.Type, remote.Config),
	}

	if remote.Type == types.RemoteSFTP && cred != nil {
		ssh, err := newSSHLister(remote.Config, cred)
		if err == nil {
			s.lister = ssh
			logging.L.Info().WithField("session", id).
				WithField("remote", remote.Name).
				WithMessage("browse session using direct connection").Write()
		} else {
			logging.L.Warn().WithField("session", id).
				WithField("error", err.Error()).
				WithMessage("direct connection failed, using daemon fallback").Write()
		}
	}

	if s.lister == nil {
		if remote.Type == types.RemoteLocal {
			s.lister = localLister{}
		} else {
			fallback, err := newDaemonLister(ctx, m.rc, id, remote, cred)
			if err != nil {
				return "", fmt.Errorf("Create: daemon fallback setup failed -> %w", err)
			}
			s.lister = fallback
		}
	}

	m.sessions.Set(id, s, ttlcache.DefaultTTL)
	return id, nil
}

// Browse lists one directory within a session, refreshing its idle timer.
func (m *Manager) Browse(ctx context.Context, sessionID, path string) ([]types.BrowseEntry, error) {
	item := m.sessions.Get(sessionID)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s := item.Value()

	entries, err := s.lister.List(ctx, fullPath(s.basePath, path), path)
	if err != nil {
		return nil, fmt.Errorf("Browse: %w", err)
	}
	return entries, nil
}

// End closes a session synchronously. Unknown ids are a no-op.
func (m *Manager) End(sessionID string) {
	m.sessions.Delete(sessionID)
}

// ActiveCount reports live sessions.
func (m *Manager) ActiveCount() int {
	return m.sessions.Len()
}

// basePath derives the listing root from the remote configuration.
func basePath(remoteType string, config map[string]string) string {
	switch remoteType {
	case types.RemoteLocal:
		if p := config["path"]; p != "" {
			return p
		}
		return "/"
	case types.RemoteS3:
		return config["bucket"]
	case types.RemoteSMB:
		share := strings.Trim(config["share"], "/")
		path := strings.Trim(config["path"], "/")
		if path != "" {
			return share + "/" + path
		}
		return share
	default:
		if p := config["path"]; p != "" {
			return p
		}
		return "/"
	}
}

func fullPath(base, rel string) string {
	if base != "" && base != "/" {
		if rel == "" {
			return base
		}
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
	}
	if rel == "" {
		return "/"
	}
	return "/" + strings.TrimLeft(rel, "/")
}
