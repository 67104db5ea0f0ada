package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"medconsult/internal/config"
	"medconsult/internal/domain"
	"medconsult/internal/policy"
	"medconsult/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testBotToken = "123456:TEST-bot-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func signedInitData(userID int64, authDate time.Time) string {
	v := url.Values{}
	v.Set("user", `{"id":`+strconv.FormatInt(userID, 10)+`,"first_name":"Test"}`)
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	return utils.SignInitData(v, testBotToken)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.OK)
	return body.Error
}

func runAuthRequest(handlers []gin.HandlerFunc, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/test", handlers...)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func echoUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "user_id": UserID(c)})
}

func TestInitDataAuthMiddleware(t *testing.T) {
	verifier := utils.NewInitDataVerifier(testBotToken, time.Hour)
	auth := InitDataAuthMiddleware(verifier)

	t.Run("missing assertion", func(t *testing.T) {
		w := runAuthRequest([]gin.HandlerFunc{auth, echoUser}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, domain.ReasonNoAssertion, decodeError(t, w))
	})

	t.Run("valid header", func(t *testing.T) {
		w := runAuthRequest([]gin.HandlerFunc{auth, echoUser}, map[string]string{InitDataHeader: signedInitData(42, time.Now())})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":42`)
	})

	t.Run("authorization tma scheme", func(t *testing.T) {
		w := runAuthRequest([]gin.HandlerFunc{auth, echoUser}, map[string]string{"Authorization": "tma " + signedInitData(43, time.Now())})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":43`)
	})

	t.Run("wrong bot token", func(t *testing.T) {
		other := InitDataAuthMiddleware(utils.NewInitDataVerifier("999:other", time.Hour))
		w := runAuthRequest([]gin.HandlerFunc{other, echoUser}, map[string]string{InitDataHeader: signedInitData(42, time.Now())})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, domain.ReasonBadHash, decodeError(t, w))
	})

	t.Run("expired", func(t *testing.T) {
		w := runAuthRequest([]gin.HandlerFunc{auth, echoUser}, map[string]string{InitDataHeader: signedInitData(42, time.Now().Add(-2*time.Hour))})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, domain.ReasonExpired, decodeError(t, w))
	})

	t.Run("unparseable assertion", func(t *testing.T) {
		w := runAuthRequest([]gin.HandlerFunc{auth, echoUser}, map[string]string{InitDataHeader: "hash=%zz"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, domain.ReasonMalformed, decodeError(t, w))
	})
}

type stubResolver struct {
	doctor *domain.Doctor
	err    error
}

func (s stubResolver) Viewer(_ context.Context, userID int64) (policy.Viewer, error) {
	return policy.Viewer{UserID: userID, Doctor: s.doctor}, s.err
}

func TestViewerMiddleware(t *testing.T) {
	setUser := func(c *gin.Context) { c.Set(UserIDKey, int64(7)) }
	doctor := &domain.Doctor{ID: 3, TelegramID: 7}

	w := runAuthRequest([]gin.HandlerFunc{setUser, ViewerMiddleware(stubResolver{doctor: doctor}), func(c *gin.Context) {
		v := Viewer(c)
		assert.Equal(t, int64(7), v.UserID)
		assert.Equal(t, doctor, v.Doctor)
		c.Status(http.StatusNoContent)
	}}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = runAuthRequest([]gin.HandlerFunc{setUser, ViewerMiddleware(stubResolver{err: errors.New("db down")}), echoUser}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL", decodeError(t, w))
}

func TestAdminOnlyMiddleware(t *testing.T) {
	admins := config.NewAdminSet(1)
	as := func(id int64) gin.HandlerFunc {
		return func(c *gin.Context) {
			if id != 0 {
				c.Set(UserIDKey, id)
			}
		}
	}

	w := runAuthRequest([]gin.HandlerFunc{as(1), AdminOnlyMiddleware(admins), echoUser}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = runAuthRequest([]gin.HandlerFunc{as(2), AdminOnlyMiddleware(admins), echoUser}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, domain.ReasonRoleDenied, decodeError(t, w))

	w = runAuthRequest([]gin.HandlerFunc{as(0), AdminOnlyMiddleware(admins), echoUser}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = runAuthRequest([]gin.HandlerFunc{as(1), AdminOnlyMiddleware(config.AdminSet{}), echoUser}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProviderKeyMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("provider-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	mw := ProviderKeyMiddleware(string(hash))

	w := runAuthRequest([]gin.HandlerFunc{mw, echoUser}, map[string]string{ProviderKeyHeader: "provider-secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = runAuthRequest([]gin.HandlerFunc{mw, echoUser}, map[string]string{ProviderKeyHeader: "guess"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = runAuthRequest([]gin.HandlerFunc{mw, echoUser}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = runAuthRequest([]gin.HandlerFunc{ProviderKeyMiddleware(""), echoUser}, map[string]string{ProviderKeyHeader: "provider-secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	w := runAuthRequest([]gin.HandlerFunc{TimeoutMiddleware(30 * time.Second), func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, 5*time.Second)
		c.Status(http.StatusNoContent)
	}}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
