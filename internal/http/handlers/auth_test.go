package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/passgate/internal/account"
	"github.com/hongminglow/passgate/internal/auth"
	"github.com/hongminglow/passgate/internal/mail/mailtest"
	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
	"github.com/hongminglow/passgate/internal/storage/memory"
	"github.com/hongminglow/passgate/internal/storage/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mount = "/api/users"

type testAPI struct {
	mux    *http.ServeMux
	store  storage.UserStore
	tokens *auth.TokenManager
	mailer *mailtest.Recorder
}

func newTestAPI(t *testing.T, store storage.UserStore) *testAPI {
	t.Helper()
	api := &testAPI{
		mux:    http.NewServeMux(),
		store:  store,
		tokens: auth.NewTokenManager("handler-secret", "passgate", time.Hour),
		mailer: &mailtest.Recorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := account.New(account.Deps{
		Store:    store,
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		Tokens:   api.tokens,
		Mailer:   api.mailer,
		Logger:   logger,
		LinkBase: "http://localhost:5000",
	})
	require.NoError(t, err)
	NewAuthHandler(svc, logger).Register(api.mux, mount)
	return api
}

func (a *testAPI) post(t *testing.T, path string, body any) (int, map[string]string) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
		reader = http.NoBody
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(http.MethodPost, mount+path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)

	out := map[string]string{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (a *testAPI) register(t *testing.T, username, email, password string) {
	t.Helper()
	code, body := a.post(t, "/register", map[string]string{"username": username, "email": email, "password": password})
	require.Equal(t, http.StatusCreated, code, body)
}

func TestRegister(t *testing.T) {
	t.Run("creates the user with a hashed password", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		code, body := api.post(t, "/register", map[string]string{
			"username": "alice", "email": "alice@example.com", "password": "s3cret",
		})

		assert.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "User registered successfully", body["message"])
		assert.NotContains(t, body, "token")

		user, err := api.store.FindByUsername(context.Background(), "alice")
		require.NoError(t, err)
		assert.NotEqual(t, "s3cret", user.PasswordHash)
	})

	t.Run("duplicate username with another email", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		api.register(t, "alice", "alice@example.com", "s3cret")

		code, body := api.post(t, "/register", map[string]string{
			"username": "alice", "email": "other@example.com", "password": "x",
		})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, map[string]string{"error": "Username or email already exists"}, body)
	})

	t.Run("missing fields", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		tests := []struct {
			name string
			body any
		}{
			{"no email", map[string]string{"username": "a", "password": "p"}},
			{"empty body", nil},
			{"malformed json", "{not json"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				code, body := api.post(t, "/register", tt.body)
				assert.Equal(t, http.StatusBadRequest, code)
				assert.Equal(t, "Username, email, and password are required", body["error"])
			})
		}
	})

	t.Run("store failure reports details", func(t *testing.T) {
		store := mocks.NewMockUserStore(t)
		store.On("FindByUsernameOrEmail", mock.Anything, "alice", "alice@example.com").
			Return(models.User{}, errors.New("connection refused"))
		api := newTestAPI(t, store)

		code, body := api.post(t, "/register", map[string]string{
			"username": "alice", "email": "alice@example.com", "password": "s3cret",
		})
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, map[string]string{"error": "Error registering user", "details": "connection refused"}, body)
	})
}

func TestLogin(t *testing.T) {
	t.Run("issues a one hour token for the user", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		api.register(t, "alice", "alice@example.com", "s3cret")
		user, err := api.store.FindByUsername(context.Background(), "alice")
		require.NoError(t, err)

		code, body := api.post(t, "/login", map[string]string{"username": "alice", "password": "s3cret"})
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "Login successful", body["message"])

		claims, err := api.tokens.Parse(body["token"])
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	})

	t.Run("wrong password and unknown user are indistinguishable", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		api.register(t, "alice", "alice@example.com", "s3cret")

		wrongCode, wrongBody := api.post(t, "/login", map[string]string{"username": "alice", "password": "bad"})
		unknownCode, unknownBody := api.post(t, "/login", map[string]string{"username": "nobody", "password": "s3cret"})

		assert.Equal(t, http.StatusBadRequest, wrongCode)
		assert.Equal(t, wrongCode, unknownCode)
		assert.Equal(t, map[string]string{"error": "Invalid username or password"}, wrongBody)
		assert.Equal(t, wrongBody, unknownBody)
	})

	t.Run("missing fields", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		code, body := api.post(t, "/login", map[string]string{"username": "alice"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Username and password are required", body["error"])
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("sends exactly one reset link", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		api.register(t, "alice", "alice@example.com", "s3cret")

		code, body := api.post(t, "/forgot-password", map[string]string{"email": "alice@example.com"})
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "Password reset link sent to email", body["message"])

		sent := api.mailer.Sent()
		require.Len(t, sent, 1)
		_, link, found := strings.Cut(sent[0].Body, "http://localhost:5000/reset-password/")
		require.True(t, found, sent[0].Body)
		_, err := api.tokens.Parse(link)
		assert.NoError(t, err)
	})

	t.Run("unknown email", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		code, body := api.post(t, "/forgot-password", map[string]string{"email": "ghost@example.com"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Email not found", body["error"])
		assert.Empty(t, api.mailer.Sent())
	})

	t.Run("missing email", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		code, body := api.post(t, "/forgot-password", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Email is required", body["error"])
	})

	t.Run("mail failure", func(t *testing.T) {
		api := newTestAPI(t, memory.NewUserStore())
		api.register(t, "alice", "alice@example.com", "s3cret")
		api.mailer.Err = errors.New("dial tcp: i/o timeout")

		code, body := api.post(t, "/forgot-password", map[string]string{"email": "alice@example.com"})
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "Error sending email", body["error"])
		assert.Equal(t, "dial tcp: i/o timeout", body["details"])
	})
}

func TestResetPassword(t *testing.T) {
	setup := func(t *testing.T) (*testAPI, string) {
		api := newTestAPI(t, memory.NewUserStore())
		api.register(t, "alice", "alice@example.com", "old-pass")
		user, err := api.store.FindByUsername(context.Background(), "alice")
		require.NoError(t, err)
		return api, user.ID
	}

	t.Run("valid token replaces the password", func(t *testing.T) {
		api, id := setup(t)
		token, err := api.tokens.Generate(id, auth.PurposeReset)
		require.NoError(t, err)

		code, body := api.post(t, "/reset-password/"+token, map[string]string{"newPassword": "new-pass"})
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "Password has been successfully reset", body["message"])

		code, _ = api.post(t, "/login", map[string]string{"username": "alice", "password": "new-pass"})
		assert.Equal(t, http.StatusOK, code)
		code, body = api.post(t, "/login", map[string]string{"username": "alice", "password": "old-pass"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid username or password", body["error"])
	})

	t.Run("same token works twice", func(t *testing.T) {
		api, id := setup(t)
		token, err := api.tokens.Generate(id, auth.PurposeReset)
		require.NoError(t, err)

		code, _ := api.post(t, "/reset-password/"+token, map[string]string{"newPassword": "first"})
		assert.Equal(t, http.StatusOK, code)
		code, _ = api.post(t, "/reset-password/"+token, map[string]string{"newPassword": "second"})
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("expired token", func(t *testing.T) {
		api, id := setup(t)
		issuedEarlier := api.tokens.WithClock(func() time.Time { return time.Now().Add(-61 * time.Minute) })
		token, err := issuedEarlier.Generate(id, auth.PurposeReset)
		require.NoError(t, err)

		code, body := api.post(t, "/reset-password/"+token, map[string]string{"newPassword": "new-pass"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Token has expired. Please request a new password reset link.", body["error"])
	})

	t.Run("malformed token", func(t *testing.T) {
		api, _ := setup(t)
		code, body := api.post(t, "/reset-password/garbage", map[string]string{"newPassword": "new-pass"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid token. Please check the reset link.", body["error"])
	})

	t.Run("missing new password", func(t *testing.T) {
		api, id := setup(t)
		token, err := api.tokens.Generate(id, auth.PurposeReset)
		require.NoError(t, err)

		code, body := api.post(t, "/reset-password/"+token, nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "New password is required", body["error"])
	})

	t.Run("user removed after token issued", func(t *testing.T) {
		api, _ := setup(t)
		token, err := api.tokens.Generate("01HZZZZZZZZZZZZZZZZZZZZZZZ", auth.PurposeReset)
		require.NoError(t, err)

		code, body := api.post(t, "/reset-password/"+token, map[string]string{"newPassword": "new-pass"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid or expired token", body["error"])
	})
}

func TestRoutes_MethodAndMount(t *testing.T) {
	api := newTestAPI(t, memory.NewUserStore())

	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, mount+"/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	api.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMountPath(t *testing.T) {
	assert.Equal(t, "/api/users", MountPath("/api/users/"))
	assert.Equal(t, "/api/users", MountPath("api/users"))
	assert.Equal(t, "", MountPath("/"))
	assert.Equal(t, "", MountPath(""))
}
