package crypto

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabarr/grabarr/internal/store/types"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keeper, err := NewKeeper(filepath.Join(t.TempDir(), "age.key"))
	require.NoError(t, err)

	data := types.CredentialData{
		"username": "seeduser",
		"password": "s3cret!",
	}

	token, err := keeper.Encrypt(data)
	require.NoError(t, err)
	assert.NotContains(t, token, "s3cret!")

	got, err := keeper.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestKeyPersistsAcrossKeepers(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "age.key")

	first, err := NewKeeper(keyPath)
	require.NoError(t, err)
	token, err := first.Encrypt(types.CredentialData{"password": "hunter2"})
	require.NoError(t, err)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := NewKeeper(keyPath)
	require.NoError(t, err)
	got, err := second.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got["password"])
}

func TestDecryptRejectsGarbage(t *testing.T) {
	keeper, err := NewKeeper(filepath.Join(t.TempDir(), "age.key"))
	require.NoError(t, err)

	_, err = keeper.Decrypt("not base64 at all!!!")
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = keeper.Decrypt(base64.StdEncoding.EncodeToString([]byte("valid base64, junk inside")))
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	dir := t.TempDir()
	alice, err := NewKeeper(filepath.Join(dir, "alice.key"))
	require.NoError(t, err)
	bob, err := NewKeeper(filepath.Join(dir, "bob.key"))
	require.NoError(t, err)

	token, err := alice.Encrypt(types.CredentialData{"password": "x"})
	require.NoError(t, err)

	_, err = bob.Decrypt(token)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewKeeperRejectsCorruptFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "age.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("AGE-SECRET-KEY-CORRUPT"), 0o600))

	_, err := NewKeeper(keyPath)
	require.Error(t, err)
}
