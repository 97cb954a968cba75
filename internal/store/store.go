package store

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/grabarr/grabarr/internal/crypto"
	"github.com/grabarr/grabarr/internal/store/constants"
	"github.com/grabarr/grabarr/internal/store/sqlite"
	"github.com/grabarr/grabarr/internal/store/types"
)

// Store bundles the persistence layer, the credential keeper and the settings
// accessors every subsystem consumes.
type Store struct {
	Database *sqlite.Database
	Keys     *crypto.Keeper
	DataDir  string

	lock *flock.Flock
}

// Initialize opens the store under dataDir and takes the single-instance lock.
// A second process pointed at the same directory fails fast instead of racing
// the first one's daemon and schedule state.
func Initialize(dataDir string) (*Store, error) {
	if dataDir == "" {
		dataDir = constants.DbBasePath
	}

	database, err := sqlite.Initialize(filepath.Join(dataDir, constants.DbFileName))
	if err != nil {
		return nil, fmt.Errorf("Initialize: error opening database -> %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, constants.InstanceLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("Initialize: error acquiring instance lock -> %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("Initialize: another instance holds %s", lock.Path())
	}

	keys, err := crypto.NewKeeper(filepath.Join(dataDir, constants.KeyFileName))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("Initialize: error loading credential key -> %w", err)
	}

	return &Store{
		Database: database,
		Keys:     keys,
		DataDir:  dataDir,
		lock:     lock,
	}, nil
}

func (s *Store) Close() error {
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return s.Database.Close()
}

// ResolveCredential loads and decrypts the credential a remote references.
// A nil id resolves to no credential without error; everything else is fatal
// to the run that needs it.
func (s *Store) ResolveCredential(id *int64) (*types.Credential, types.CredentialData, error) {
	if id == nil {
		return nil, nil, nil
	}
	cred, err := s.Database.GetCredential(*id)
	if err != nil {
		return nil, nil, fmt.Errorf("ResolveCredential: %w", err)
	}
	data, err := s.Keys.Decrypt(cred.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("ResolveCredential: credential %d: %w", *id, err)
	}
	return &cred, data, nil
}

// Settings getters. Runtime values live in the system_settings table with
// hardcoded fallbacks from constants.

func (s *Store) FailureCooldownSeconds() int {
	return s.Database.GetSettingInt(
		constants.SettingFailureCooldownSeconds, constants.DefaultFailureCooldownSeconds)
}

func (s *Store) MaxHistoryEntries() int {
	return s.Database.GetSettingInt(
		constants.SettingMaxHistoryEntries, constants.DefaultMaxHistoryEntries)
}

func (s *Store) PreActionAbort() bool {
	return s.Database.GetSettingBool(constants.SettingPreActionAbort, false)
}

func (s *Store) NotificationURL() string {
	return s.Database.GetSettingString(constants.SettingNotificationURL, "")
}

// TransferTuning carries the daemon-side performance knobs for one dispatch.
type TransferTuning struct {
	Transfers          int
	Checkers           int
	BufferSize         string
	MultiThreadCutoff  string
	MultiThreadStreams int
}

func (s *Store) Tuning() TransferTuning {
	return TransferTuning{
		Transfers:          s.Database.GetSettingInt(constants.SettingTransfers, constants.DefaultTransfers),
		Checkers:           s.Database.GetSettingInt(constants.SettingCheckers, constants.DefaultCheckers),
		BufferSize:         s.Database.GetSettingString(constants.SettingBufferSize, constants.DefaultBufferSize),
		MultiThreadCutoff:  s.Database.GetSettingString(constants.SettingMultiThreadCutoff, constants.DefaultMultiThreadCutoff),
		MultiThreadStreams: s.Database.GetSettingInt(constants.SettingMultiThreadStreams, constants.DefaultMultiThreadStreams),
	}
}

// S3Tuning returns the chunked-transfer knobs that belong in the connection
// string rather than the transfer parameters.
type S3Tuning struct {
	ChunkSize         string
	UploadConcurrency int
}

func (s *Store) S3() S3Tuning {
	return S3Tuning{
		ChunkSize:         s.Database.GetSettingString(constants.SettingS3ChunkSize, constants.DefaultS3ChunkSize),
		UploadConcurrency: s.Database.GetSettingInt(constants.SettingS3UploadConcurrency, constants.DefaultS3UploadConcurrency),
	}
}
