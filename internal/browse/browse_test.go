package browse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabarr/grabarr/internal/store/types"
)

// fakeCaller records daemon RPCs and serves canned listing payloads.
type fakeCaller struct {
	mu       sync.Mutex
	calls    []string
	profiles map[string]map[string]any
	listing  []any
	failNext error
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{profiles: map[string]map[string]any{}}
}

func (f *fakeCaller) Call(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.calls = append(f.calls, command)

	switch command {
	case "config/create":
		name := params["name"].(string)
		f.profiles[name], _ = params["parameters"].(map[string]any)
		return map[string]any{}, nil
	case "config/delete":
		delete(f.profiles, params["name"].(string))
		return map[string]any{}, nil
	case "operations/list":
		return map[string]any{"list": f.listing}, nil
	}
	return nil, fmt.Errorf("unexpected command: %s", command)
}

func (f *fakeCaller) callCount(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}

func TestLocalSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "season1"), 0o755))

	m := NewManager(newFakeCaller())
	defer m.Close()

	remote := types.Remote{
		ID:     1,
		Name:   "disk",
		Type:   types.RemoteLocal,
		Config: map[string]string{"path": dir},
	}
	id, err := m.Create(context.Background(), remote, nil)
	require.NoError(t, err)
	require.Len(t, id, 8)
	assert.Equal(t, 1, m.ActiveCount())

	entries, err := m.Browse(context.Background(), id, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string]types.BrowseEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.False(t, byName["movie.mkv"].IsDir)
	assert.Equal(t, int64(1), byName["movie.mkv"].Size)
	assert.True(t, byName["season1"].IsDir)
	assert.Equal(t, "inode/directory", byName["season1"].MimeType)
	assert.Equal(t, int64(0), byName["season1"].Size)

	sub, err := m.Browse(context.Background(), id, "season1")
	require.NoError(t, err)
	assert.Empty(t, sub)

	m.End(id)
	assert.Equal(t, 0, m.ActiveCount())
	// Ending twice is harmless.
	m.End(id)

	_, err = m.Browse(context.Background(), id, "")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiresWhenIdle(t *testing.T) {
	fake := newFakeCaller()
	m := NewManager(fake, WithIdleTimeout(50*time.Millisecond))
	defer m.Close()

	remote := types.Remote{
		ID:     1,
		Name:   "seedbox",
		Type:   types.RemoteFTP,
		Config: map[string]string{"host": "seed.example.com"},
	}
	id, err := m.Create(context.Background(), remote, nil)
	require.NoError(t, err)
	require.Equal(t, 1, fake.callCount("config/create"))

	require.Eventually(t, func() bool {
		return m.ActiveCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Eviction tore down the temporary profile.
	require.Eventually(t, func() bool {
		return fake.callCount("config/delete") == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = m.Browse(context.Background(), id, "")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDaemonFallbackListing(t *testing.T) {
	fake := newFakeCaller()
	fake.listing = []any{
		map[string]any{
			"Path": "incoming/show.mkv", "Name": "show.mkv",
			"Size": float64(4096), "ModTime": "2026-03-01T12:00:00Z",
			"IsDir": false, "MimeType": "video/x-matroska",
		},
		map[string]any{
			"Path": "incoming/sub", "Name": "sub",
			"Size": float64(-1), "IsDir": true,
		},
	}

	m := NewManager(fake)
	defer m.Close()

	remote := types.Remote{
		ID:     2,
		Name:   "seedbox",
		Type:   types.RemoteFTP,
		Config: map[string]string{"host": "seed.example.com", "path": "/incoming"},
	}
	id, err := m.Create(context.Background(), remote, types.CredentialData{
		"user": "ftpuser", "password": "hunter2",
	})
	require.NoError(t, err)

	profile, ok := fake.profiles["grabarr_browse_"+id]
	require.True(t, ok)
	assert.Equal(t, "seed.example.com", profile["host"])
	assert.Equal(t, "21", profile["port"])
	assert.Equal(t, "ftpuser", profile["user"])
	assert.Equal(t, "hunter2", profile["pass"])

	entries, err := m.Browse(context.Background(), id, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "show.mkv", entries[0].Name)
	assert.Equal(t, int64(4096), entries[0].Size)
	assert.True(t, entries[1].IsDir)

	m.End(id)
	require.Eventually(t, func() bool {
		return fake.callCount("config/delete") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemonFallbackSetupFailure(t *testing.T) {
	fake := newFakeCaller()
	fake.failNext = fmt.Errorf("daemon down")

	m := NewManager(fake)
	defer m.Close()

	remote := types.Remote{
		ID:     3,
		Name:   "seedbox",
		Type:   types.RemoteFTP,
		Config: map[string]string{"host": "seed.example.com"},
	}
	_, err := m.Create(context.Background(), remote, nil)
	require.Error(t, err)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestBasePath(t *testing.T) {
	tests := []struct {
		remoteType string
		config     map[string]string
		want       string
	}{
		{types.RemoteLocal, map[string]string{"path": "/mnt/media"}, "/mnt/media"},
		{types.RemoteLocal, map[string]string{}, "/"},
		{types.RemoteS3, map[string]string{"bucket": "backups"}, "backups"},
		{types.RemoteSMB, map[string]string{"share": "media"}, "media"},
		{types.RemoteSMB, map[string]string{"share": "/media/", "path": "/tv/"}, "media/tv"},
		{types.RemoteSFTP, map[string]string{"path": "/home/user"}, "/home/user"},
		{types.RemoteSFTP, map[string]string{}, "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, basePath(tt.remoteType, tt.config), "%s %v", tt.remoteType, tt.config)
	}
}

func TestFullPath(t *testing.T) {
	assert.Equal(t, "/home/user", fullPath("/home/user", ""))
	assert.Equal(t, "/home/user/films", fullPath("/home/user/", "/films"))
	assert.Equal(t, "/", fullPath("/", ""))
	assert.Equal(t, "/films", fullPath("/", "films"))
	assert.Equal(t, "/downloads", fullPath("", "downloads"))
}

func TestParseListing(t *testing.T) {
	output := "total 16\n" +
		"drwxr-xr-x 2 user group 4096 2026-03-01 09:30 season1\n" +
		"-rw-r--r-- 1 user group 734003200 2026-02-28 23:59 episode one.mkv\n" +
		"lrwxrwxrwx 1 user group 11 2026-01-15 08:00 latest -> ./season1\n" +
		"garbage line\n" +
		"\n"

	entries := parseListing("/media/tv", output)
	require.Len(t, entries, 3)

	dir := entries[0]
	assert.Equal(t, "season1", dir.Name)
	assert.Equal(t, "/media/tv/season1", dir.Path)
	assert.True(t, dir.IsDir)
	assert.Equal(t, int64(0), dir.Size)
	assert.Equal(t, "inode/directory", dir.MimeType)
	assert.Equal(t, "2026-03-01T09:30:00Z", dir.ModTime)

	file := entries[1]
	assert.Equal(t, "episode one.mkv", file.Name)
	assert.Equal(t, int64(734003200), file.Size)
	assert.False(t, file.IsDir)

	link := entries[2]
	assert.Equal(t, "latest", link.Name)
	assert.False(t, link.IsDir)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/media/tv'", shellQuote("/media/tv"))
	assert.Equal(t, `'it'\''s here'`, shellQuote("it's here"))
}
