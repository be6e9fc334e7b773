package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookpage/pkg/jwt"
)

const secret = "test-signing-secret"

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestNew_RequiresSecret(t *testing.T) {
	t.Parallel()
	_, err := jwt.New("")
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestService_SignAndParse(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := jwt.New(secret, jwt.WithIssuer("bookpage"), jwt.WithClock(fixedClock(now)))
	require.NoError(t, err)

	token, err := svc.Sign("user-1", time.Hour)
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "bookpage", claims.Issuer)
}

func TestService_Parse_Rejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := jwt.New(secret, jwt.WithClock(fixedClock(now)))
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		issuer, err := jwt.New(secret, jwt.WithClock(fixedClock(now.Add(-2*time.Hour))))
		require.NoError(t, err)
		token, err := issuer.Sign("user-1", time.Hour)
		require.NoError(t, err)

		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		other, err := jwt.New("other-secret", jwt.WithClock(fixedClock(now)))
		require.NoError(t, err)
		token, err := other.Sign("user-1", time.Hour)
		require.NoError(t, err)

		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		t.Parallel()
		token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS512, jwt.Claims{
			Subject:   "user-1",
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
		}).SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()
		token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, jwt.Claims{
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
		}).SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrMissingSubject)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Parse("not.a.token")
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New(secret)
	require.NoError(t, err)
	token, err := svc.Sign("user-42", time.Hour)
	require.NoError(t, err)

	var gotUser string
	h := jwt.Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = jwt.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/billing/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "user-42", gotUser)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/sync", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/billing/sync", nil)
		req.Header.Set("Authorization", "Basic "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie extractor", func(t *testing.T) {
		ch := jwt.Middleware(svc, jwt.BearerTokenExtractor, jwt.CookieTokenExtractor("session"))(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, ok := jwt.UserID(r.Context())
				assert.True(t, ok)
				assert.Equal(t, "user-42", id)
			}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
		rec := httptest.NewRecorder()
		ch.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
