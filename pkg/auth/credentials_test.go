package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := &Account{Username: "testuser", Password: "hunter2-but-longer"}
	require.NoError(t, manager.Store(account))
	assert.False(t, account.LastModified.IsZero())

	retrieved, err := manager.Retrieve("testuser")
	require.NoError(t, err)
	assert.Equal(t, account.Username, retrieved.Username)
	assert.Equal(t, account.Password, retrieved.Password)

	creds := retrieved.Credentials()
	assert.Equal(t, "testuser", creds.Username)
	assert.Equal(t, "hunter2-but-longer", creds.Password)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("testuser"))
	_, err = manager.Retrieve("testuser")
	assert.Error(t, err)
	assert.Equal(t, 0, mockStore.Count())
}

func TestManager_StoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(&Account{Password: "x"}))
	assert.Error(t, manager.Store(&Account{Username: "x"}))
	assert.Error(t, manager.Store(nil))
}

func TestManager_StoreFallsThrough(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	working := NewMockStore()
	manager := NewMockManagerWithStores(broken, working)

	require.NoError(t, manager.Store(&Account{Username: "alice", Password: "pw"}))
	assert.Equal(t, 0, broken.Count())
	assert.True(t, working.Exists("alice"))
}

func TestManager_ListPrefersNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()
	now := time.Now()
	require.NoError(t, older.Store(&Account{Username: "alice", Password: "old", LastModified: now.Add(-time.Hour)}))
	require.NoError(t, newer.Store(&Account{Username: "alice", Password: "new", LastModified: now}))
	require.NoError(t, newer.Store(&Account{Username: "bob", Password: "b", LastModified: now.Add(-2 * time.Hour)}))

	accounts, err := NewMockManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "new", accounts[0].Password)
	assert.Equal(t, "bob", accounts[1].Username)
}

func TestManager_RetrieveDefault(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	store := NewMockStore()
	manager := NewMockManagerWithStores(store, NewEnvironmentStore())

	_, err := manager.RetrieveDefault()
	assert.Error(t, err)

	require.NoError(t, store.Store(&Account{Username: "saved", Password: "pw", LastModified: time.Now()}))
	account, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "saved", account.Username)

	t.Setenv(EnvUsername, "fromenv")
	t.Setenv(EnvPassword, "envpw")
	account, err = manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", account.Username)
}

func TestSanitizeAccount(t *testing.T) {
	account := &Account{Username: "alice", Password: "correct-horse-battery"}
	sanitized := SanitizeAccount(account)

	assert.Equal(t, "alice", sanitized.Username)
	assert.Equal(t, "corr...tery", sanitized.Password)
	assert.Equal(t, "********", SanitizeAccount(&Account{Password: "short"}).Password)
	assert.Nil(t, SanitizeAccount(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(passphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "creds.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	account := &Account{Username: "encrypted_user", Password: "plaintext-secret"}
	require.NoError(t, store.Store(account))

	retrieved, err := store.Retrieve("encrypted_user")
	require.NoError(t, err)
	assert.Equal(t, account.Password, retrieved.Password)
	assert.True(t, store.Exists("encrypted_user"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("plaintext-secret")))
	assert.False(t, bytes.Contains(content, []byte("encrypted_user")))

	t.Run("WrongPassphrase", func(t *testing.T) {
		t.Setenv(passphraseEnv, "another")
		other, err := NewEncryptedFileStore(path)
		require.NoError(t, err)
		_, err = other.Retrieve("encrypted_user")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrCredentialsNotFound)
	})

	t.Run("DeleteLastRemovesFile", func(t *testing.T) {
		require.NoError(t, store.Delete("encrypted_user"))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
		assert.ErrorIs(t, store.Delete("encrypted_user"), ErrCredentialsNotFound)
	})
}

func TestEncryptedFileStore_GeneratedPassphrase(t *testing.T) {
	t.Setenv(passphraseEnv, "")
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	if dir, err := getConfigDir(); err != nil || !strings.HasPrefix(dir, configHome) {
		t.Skip("platform config dir does not follow XDG_CONFIG_HOME")
	}

	path := filepath.Join(t.TempDir(), "creds.enc")
	first, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Store(&Account{Username: "alice", Password: "pw"}))

	second, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	account, err := second.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "pw", account.Password)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvUsername, "env_user")
	t.Setenv(EnvPassword, "env_pass")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "env_user", account.Username)
	assert.Equal(t, "env_pass", account.Password)

	_, err = store.Retrieve("someone_else")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.True(t, store.Exists("env_user"))

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("env_user"), ErrStoreUnavailable)

	t.Setenv(EnvPassword, "")
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestMockStore(t *testing.T) {
	store := NewMockStore()

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, store.Store(&Account{Username: "mockuser", Password: "pw"}))
	assert.Equal(t, 1, store.Count())
	assert.True(t, store.Exists("mockuser"))

	store.ListError = errors.New("injected error")
	_, err = store.List()
	assert.EqualError(t, err, "injected error")

	store.Clear()
	assert.Equal(t, 0, store.Count())
}
