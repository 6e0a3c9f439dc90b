package authgw

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestCredentialFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    Credential
		wantErr bool
	}{
		{
			name:    "bearer token",
			headers: map[string]string{"Authorization": "Bearer tok-123"},
			want:    Credential{Kind: CredentialBearer, Value: "tok-123"},
		},
		{
			name:    "api key",
			headers: map[string]string{"X-API-Key": "key-456"},
			want:    Credential{Kind: CredentialAPIKey, Value: "key-456"},
		},
		{
			name: "bearer wins over api key",
			headers: map[string]string{
				"Authorization": "Bearer tok-123",
				"X-API-Key":     "key-456",
			},
			want: Credential{Kind: CredentialBearer, Value: "tok-123"},
		},
		{
			name:    "malformed authorization header",
			headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			wantErr: true,
		},
		{
			name:    "no credential",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			cred, err := CredentialFromRequest(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAuth)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cred)
		})
	}
}

func TestVerifyAllowed(t *testing.T) {
	var gotReq verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(verifyResponse{
			Allowed:     true,
			Principal:   "user-42",
			SystemScope: false,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	d, err := c.Verify(context.Background(), Credential{Kind: CredentialAPIKey, Value: "key-1"},
		"modelgate", "task", "create")
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.Equal(t, "user-42", d.Principal)
	assert.False(t, d.SystemScope)

	assert.Equal(t, "api_key", gotReq.CredentialKind)
	assert.Equal(t, "key-1", gotReq.Credential)
	assert.Equal(t, "modelgate", gotReq.Service)
	assert.Equal(t, "task", gotReq.Resource)
	assert.Equal(t, "create", gotReq.Action)
}

func TestVerifyDenied(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "allowed false",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(verifyResponse{Allowed: false, Message: "nope"})
			},
			wantErr: ErrPermission,
		},
		{
			name: "forbidden status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			wantErr: ErrPermission,
		},
		{
			name: "unauthorized status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantErr: ErrAuth,
		},
		{
			name: "gateway error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: ErrAuth,
		},
		{
			name: "malformed response body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErr: ErrAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewHTTPClient(srv.URL, time.Second, testLogger())
			_, err := c.Verify(context.Background(), Credential{Kind: CredentialAPIKey, Value: "k"},
				"modelgate", "task", "read")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyUnreachableGateway(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", time.Second, testLogger())

	_, err := c.Verify(context.Background(), Credential{Kind: CredentialAPIKey, Value: "k"},
		"modelgate", "task", "read")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestVerifyBearerSubjectFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Gateway allows but omits the principal.
		_ = json.NewEncoder(w).Encode(verifyResponse{Allowed: true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	d, err := c.Verify(context.Background(),
		Credential{Kind: CredentialBearer, Value: signedToken(t, "user-7")},
		"modelgate", "task", "read")
	require.NoError(t, err)
	assert.Equal(t, "user-7", d.Principal)
}

func TestVerifyNoPrincipalNoScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyResponse{Allowed: true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	_, err := c.Verify(context.Background(), Credential{Kind: CredentialAPIKey, Value: "k"},
		"modelgate", "task", "read")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestVerifySystemScopeWithoutPrincipal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyResponse{Allowed: true, SystemScope: true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, testLogger())
	d, err := c.Verify(context.Background(), Credential{Kind: CredentialAPIKey, Value: "k"},
		"modelgate", "task", "list")
	require.NoError(t, err)
	assert.True(t, d.SystemScope)
}
