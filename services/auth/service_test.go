package auth

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"coshub/config"
	"coshub/models"
)

type stubRunner struct {
	stdout string
	stderr string
	err    error
	args   []string
	name   string
}

func (r *stubRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	r.name = name
	r.args = args
	return r.stdout, r.stderr, r.err
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestService(t *testing.T, runner Runner) (*Service, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	svc, err := NewService(config.AuthConfig{
		SitePasswordHash: hashOf(t, "hunter2hunter2"),
		AuthDir:          ".auth",
		GalleryDLPath:    "gallery-dl",
	}, NewMemoryStore(), fs, runner)
	require.NoError(t, err)
	return svc, fs
}

func validCreds() models.Credentials {
	return models.Credentials{AuthToken: "auth-token-long-enough", CT0: "ct0-token-long-enough"}
}

func TestResolveFallbackChain(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv(envAuthToken, "")
		t.Setenv(envCT0, "")

		creds, source := svc.Resolve(models.Credentials{})
		assert.Equal(t, SourceNone, source)
		assert.False(t, creds.HasBoth())
	})

	t.Run("request override", func(t *testing.T) {
		t.Setenv(envAuthToken, "")
		t.Setenv(envCT0, "")

		_, source := svc.Resolve(validCreds())
		assert.Equal(t, SourceRequest, source)
	})

	t.Run("store beats request", func(t *testing.T) {
		t.Setenv(envAuthToken, "")
		t.Setenv(envCT0, "")
		require.NoError(t, svc.Save(validCreds()))

		creds, source := svc.Resolve(models.Credentials{AuthToken: "override-token", CT0: "override-ct0"})
		assert.Equal(t, SourceStore, source)
		assert.Equal(t, validCreds().AuthToken, creds.AuthToken)

		require.NoError(t, svc.Clear())
	})

	t.Run("env beats everything", func(t *testing.T) {
		t.Setenv(envAuthToken, "env-auth-token")
		t.Setenv(envCT0, "env-ct0-token")
		require.NoError(t, svc.Save(validCreds()))

		creds, source := svc.Resolve(models.Credentials{})
		assert.Equal(t, SourceEnv, source)
		assert.Equal(t, "env-auth-token", creds.AuthToken)

		require.NoError(t, svc.Clear())
	})
}

func TestSaveValidatesTokens(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{})

	assert.Error(t, svc.Save(models.Credentials{AuthToken: "short", CT0: "also"}))
	assert.Error(t, svc.Save(models.Credentials{AuthToken: "long-enough-token"}))
	assert.NoError(t, svc.Save(models.Credentials{
		AuthToken: "  auth-token-long-enough  ",
		CT0:       "ct0-token-long-enough",
	}))

	creds, ok := svc.store.Get()
	require.True(t, ok)
	assert.Equal(t, "auth-token-long-enough", creds.AuthToken, "tokens are trimmed")
	assert.NotEmpty(t, creds.UpdatedAt)
}

func TestSaveRendersGalleryDLConfig(t *testing.T) {
	svc, fs := newTestService(t, &stubRunner{})
	require.NoError(t, svc.Save(validCreds()))

	data, err := afero.ReadFile(fs, ".auth/gallery-dl-config.json")
	require.NoError(t, err)

	var cfg struct {
		Extractor struct {
			Twitter struct {
				Cookies  map[string]string `json:"cookies"`
				Include  string            `json:"include"`
				Retweets bool              `json:"retweets"`
			} `json:"twitter"`
		} `json:"extractor"`
	}
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, validCreds().AuthToken, cfg.Extractor.Twitter.Cookies["auth_token"])
	assert.Equal(t, "timeline", cfg.Extractor.Twitter.Include)
	assert.False(t, cfg.Extractor.Twitter.Retweets)
}

func TestVerifyWithoutConfig(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{})

	result, err := svc.Verify(context.Background(), "caller")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestVerifyClassifiesOutput(t *testing.T) {
	tests := []struct {
		name   string
		runner *stubRunner
		valid  bool
	}{
		{"clean run", &stubRunner{stdout: "simulated one tweet"}, true},
		{"authorization error", &stubRunner{stderr: "twitter: AuthorizationError", err: assert.AnError}, false},
		{"login required", &stubRunner{stderr: "Login required"}, false},
		{"http 401", &stubRunner{stderr: "error: 401 Unauthorized", err: assert.AnError}, false},
		{"unrelated failure", &stubRunner{stderr: "network unreachable", err: assert.AnError}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, tt.runner)
			require.NoError(t, svc.Save(validCreds()))

			result, err := svc.Verify(context.Background(), "caller")
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.IsValid)
		})
	}
}

func TestVerifyInvocation(t *testing.T) {
	runner := &stubRunner{stdout: "ok"}
	svc, _ := newTestService(t, runner)
	require.NoError(t, svc.Save(validCreds()))

	_, err := svc.Verify(context.Background(), "caller")
	require.NoError(t, err)

	assert.Equal(t, "gallery-dl", runner.name)
	assert.Contains(t, runner.args, "--simulate")
	assert.Contains(t, runner.args, "--range")
	assert.Contains(t, runner.args, "https://x.com/Twitter")
}

func TestVerifyRateLimitsPerCaller(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{stdout: "ok"})
	require.NoError(t, svc.Save(validCreds()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Verify(ctx, "1.2.3.4")
		require.NoError(t, err)
	}
	_, err := svc.Verify(ctx, "1.2.3.4")
	assert.ErrorIs(t, err, ErrRateLimited)

	// a different caller has its own window
	_, err = svc.Verify(ctx, "5.6.7.8")
	assert.NoError(t, err)
}

func TestLoginAndSessions(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{})

	_, err := svc.Login("wrong password")
	assert.Error(t, err)

	token, err := svc.Login("hunter2hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	assert.True(t, svc.ValidSession(token))
	assert.False(t, svc.ValidSession("made-up-token"))
}

func TestNewServiceGeneratesPassword(t *testing.T) {
	svc, err := NewService(config.AuthConfig{AuthDir: ".auth"},
		NewMemoryStore(), afero.NewMemMapFs(), &stubRunner{})
	require.NoError(t, err)
	assert.NotEmpty(t, svc.passwordHash)
}
