package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workclock/internal/apperr"
)

const (
	testKey    = "test-key"
	testIssuer = "workclock"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue(42, "Ann", testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	claims, err := Parse(tok.Token, testKey, testIssuer)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "Ann", claims.UserName)

	_, err = Parse(tok.Token, "other-key", testIssuer)
	assert.Error(t, err)

	_, err = Parse(tok.Token, testKey, "someone-else")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	tok, err := Issue(1, "", testIssuer, testKey, -time.Minute)
	require.NoError(t, err)

	_, err = Parse(tok.Token, testKey, testIssuer)
	assert.Error(t, err)
}

func serve(t *testing.T, required bool, header string) (*httptest.ResponseRecorder, *Claims) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen *Claims
	r := gin.New()
	r.GET("/", OptionalBearer(testKey, testIssuer, required, nil), func(c *gin.Context) {
		if claims, ok := ClaimsFrom(c); ok {
			seen = &claims
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestOptionalBearer(t *testing.T) {
	tok, err := Issue(7, "", testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	t.Run("no token passes when optional", func(t *testing.T) {
		w, claims := serve(t, false, "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Nil(t, claims)
	})

	t.Run("no token rejected when required", func(t *testing.T) {
		w, _ := serve(t, true, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token stores claims", func(t *testing.T) {
		w, claims := serve(t, false, "Bearer "+tok.Token)
		assert.Equal(t, http.StatusNoContent, w.Code)
		require.NotNil(t, claims)
		assert.Equal(t, "7", claims.Subject)
	})

	t.Run("garbage token rejected even when optional", func(t *testing.T) {
		w, _ := serve(t, false, "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non bearer scheme rejected", func(t *testing.T) {
		w, _ := serve(t, false, "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestOptionalBearerRejectCallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var rejected []error
	r := gin.New()
	r.GET("/", OptionalBearer(testKey, testIssuer, true, func(c *gin.Context, err error) {
		rejected = append(rejected, err)
		c.AbortWithStatusJSON(apperr.From(err).Status, gin.H{"code": apperr.From(err).Code})
	}), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, header := range []string{"", "Basic abc", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}

	require.Len(t, rejected, 3)
	for _, err := range rejected {
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	}
}

func TestOptionalBearerAbortsWhenRejectDoesNot(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reached := false
	r := gin.New()
	r.GET("/", OptionalBearer(testKey, testIssuer, true, func(*gin.Context, error) {}), func(c *gin.Context) {
		reached = true
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
