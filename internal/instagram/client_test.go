package instagram

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/instabridge/internal/config"
)

type fakeAPI struct {
	loginCalls  int
	resumeCalls int
	resumeErr   error
	threads     []RawThread
	pingErr     error
}

func (f *fakeAPI) Login(_ context.Context, username, _ string) (*Session, error) {
	f.loginCalls++
	return &Session{UserID: "42", Username: username, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) Resume(_ context.Context, _ *Session) error {
	f.resumeCalls++
	return f.resumeErr
}

func (f *fakeAPI) DirectThreads(_ context.Context, _ int) ([]RawThread, error) {
	return f.threads, nil
}

func (f *fakeAPI) ThreadMessages(_ context.Context, _ string, _ int, _ string) ([]RawMessage, error) {
	return nil, nil
}

func (f *fakeAPI) UserInfo(_ context.Context, _ string) (*RawUser, error) {
	return &RawUser{UserID: "7", Username: "someone"}, nil
}

func (f *fakeAPI) SendText(_ context.Context, _, _ string, _ []string) (string, error) {
	return "m99", nil
}

func (f *fakeAPI) AccountInfo(_ context.Context) (*RawAccount, error) {
	return &RawAccount{RawUser: RawUser{UserID: "42"}}, nil
}

func (f *fakeAPI) Ping(_ context.Context) error { return f.pingErr }

func testConfig(t *testing.T) config.InstagramConfig {
	t.Helper()
	return config.InstagramConfig{
		Username:    "bridge_account",
		Password:    "secret",
		SessionFile: filepath.Join(t.TempDir(), "session.json"),
		BatchSize:   50,
		ThreadLimit: 100,
	}
}

func TestAuthenticateFreshLogin(t *testing.T) {
	api := &fakeAPI{}
	client := NewClient(api, testConfig(t), nil)

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, 1, api.loginCalls)
	assert.Equal(t, 0, api.resumeCalls)

	// Second call is a no-op.
	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, 1, api.loginCalls)
}

func TestAuthenticatePersistsAndResumesSession(t *testing.T) {
	cfg := testConfig(t)

	api := &fakeAPI{}
	client := NewClient(api, cfg, nil)
	require.NoError(t, client.Authenticate(context.Background()))

	saved, ok, err := LoadSession(cfg.SessionFile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bridge_account", saved.Username)

	// A fresh client with the same session file resumes instead of logging in.
	api2 := &fakeAPI{}
	client2 := NewClient(api2, cfg, nil)
	require.NoError(t, client2.Authenticate(context.Background()))
	assert.Equal(t, 1, api2.resumeCalls)
	assert.Equal(t, 0, api2.loginCalls)
}

func TestAuthenticateFallsBackOnExpiredSession(t *testing.T) {
	cfg := testConfig(t)
	session := &Session{UserID: "42", Username: "bridge_account", CreatedAt: time.Now()}
	require.NoError(t, session.Save(cfg.SessionFile))

	api := &fakeAPI{resumeErr: ErrLoginRequired}
	client := NewClient(api, cfg, nil)
	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, 1, api.resumeCalls)
	assert.Equal(t, 1, api.loginCalls)
}

func TestOperationsRequireAuthentication(t *testing.T) {
	client := NewClient(&fakeAPI{}, testConfig(t), nil)

	_, err := client.DirectThreads(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = client.ThreadMessages(context.Background(), "t1", 10, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = client.SendText(context.Background(), "t1", "hi", nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.ErrorIs(t, client.TestConnection(context.Background()), ErrNotAuthenticated)
}

func TestTestConnectionReportsPingFailure(t *testing.T) {
	api := &fakeAPI{}
	client := NewClient(api, testConfig(t), nil)
	require.NoError(t, client.Authenticate(context.Background()))
	require.NoError(t, client.TestConnection(context.Background()))

	api.pingErr = errors.New("socket closed")
	assert.Error(t, client.TestConnection(context.Background()))
}

func TestLoadSessionMissingFile(t *testing.T) {
	_, ok, err := LoadSession(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}
