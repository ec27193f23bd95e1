package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
)

type tokenServer struct {
	*httptest.Server
	calls  atomic.Int32
	mu     sync.Mutex
	grants []string
	fail   bool
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		require.NoError(t, r.ParseForm())
		ts.mu.Lock()
		ts.grants = append(ts.grants, r.PostForm.Get("grant_type"))
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if ts.fail {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"AADSTS70000: refresh token expired"}`))
			return
		}
		w.Write([]byte(`{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"refresh ok", Config{TenantID: "t", ClientID: "c", RefreshToken: "r"}, true},
		{"refresh missing token", Config{TenantID: "t", ClientID: "c"}, false},
		{"app ok", Config{Mode: ModeClientCredentials, TenantID: "t", ClientID: "c", ClientSecret: "s"}, true},
		{"app missing secret", Config{Mode: ModeClientCredentials, TenantID: "t", ClientID: "c"}, false},
		{"missing client", Config{TenantID: "t", RefreshToken: "r"}, false},
		{"missing tenant", Config{ClientID: "c", RefreshToken: "r"}, false},
		{"unknown mode", Config{Mode: "device", TenantID: "t", ClientID: "c"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, exporterrors.CodeMissingCredentials, exporterrors.GetCode(err))
		})
	}
}

func TestSession_RefreshTokenOnce(t *testing.T) {
	server := newTokenServer(t)
	session, err := NewSession(Config{ClientID: "c", RefreshToken: "r", TokenURL: server.URL}, server.Client(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := session.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "graph-token", tok)
		}()
	}
	wg.Wait()

	tok, err := session.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "graph-token", tok)
	assert.Equal(t, int32(1), server.calls.Load())
	assert.Equal(t, []string{"refresh_token"}, server.grants)
}

func TestSession_ClientCredentials(t *testing.T) {
	server := newTokenServer(t)
	session, err := NewSession(Config{
		Mode: ModeClientCredentials, ClientID: "c", ClientSecret: "s", TokenURL: server.URL,
	}, server.Client(), nil)
	require.NoError(t, err)

	tok, err := session.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "graph-token", tok)
	assert.Equal(t, []string{"client_credentials"}, server.grants)
}

func TestSession_FailureIsAuthError(t *testing.T) {
	server := newTokenServer(t)
	server.fail = true
	session, err := NewSession(Config{ClientID: "c", RefreshToken: "r", TokenURL: server.URL}, server.Client(), nil)
	require.NoError(t, err)

	_, err = session.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, exporterrors.ErrCategoryAuth, exporterrors.GetCategory(err))
	assert.Equal(t, exporterrors.CodeTokenAcquisition, exporterrors.GetCode(err))
}

func TestSession_CancelledContext(t *testing.T) {
	session, err := NewSession(Config{TenantID: "t", ClientID: "c", RefreshToken: "r"}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = session.Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
