package credstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte(strings.Repeat("k", 32))
}

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creds.enc")
	s, err := New(path, testKey())
	require.NoError(t, err)
	return s, path
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newStore(t)

	cred := Credential{TenantID: "t1", RepoID: "owner/repo", Username: "bot", Token: "ghp_secret"}
	require.NoError(t, s.Put(cred))

	got, ok, err := s.Get("t1", "owner/repo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cred, got)

	_, ok, err = s.Get("t1", "other/repo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenNeverOnDiskInPlaintext(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, s.Put(Credential{TenantID: "t1", RepoID: "r", Token: "super-secret-token"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "super-secret-token")
	assert.NotContains(t, string(raw), "tenant_id")
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Put(Credential{TenantID: "t1", RepoID: "r", Token: "x"}))
	require.NoError(t, s.Delete("t1", "r"))

	_, ok, err := s.Get("t1", "r")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopenWithSameKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")
	s, err := New(path, testKey())
	require.NoError(t, err)
	require.NoError(t, s.Put(Credential{TenantID: "t1", RepoID: "r", Token: "tok"}))

	reopened, err := New(path, testKey())
	require.NoError(t, err)
	got, ok, err := reopened.Get("t1", "r")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok", got.Token)
}

func TestWrongKeyFailsClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")
	s, err := New(path, testKey())
	require.NoError(t, err)
	require.NoError(t, s.Put(Credential{TenantID: "t1", RepoID: "r", Token: "tok"}))

	wrong, err := New(path, []byte(strings.Repeat("w", 32)))
	require.NoError(t, err)
	_, _, err = wrong.Get("t1", "r")
	assert.Error(t, err)
}

func TestRejectsBadKeySize(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "c"), []byte("short"))
	assert.Error(t, err)
}

func TestPutValidates(t *testing.T) {
	s, _ := newStore(t)
	assert.Error(t, s.Put(Credential{RepoID: "r", Token: "x"}))
	assert.Error(t, s.Put(Credential{TenantID: "t", Token: "x"}))
}
