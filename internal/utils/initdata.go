package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"medconsult/internal/domain"
)

// webAppDataKey is the fixed HMAC key Telegram uses to derive the WebApp secret
const webAppDataKey = "WebAppData"

// MaxFutureSkew is how far auth_date may lie ahead of the server clock
const MaxFutureSkew = 60 * time.Second

// TelegramUser is the subset of the initData user object the backend relies on
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Identity is the verified caller. It is derived per request and never persisted.
type Identity struct {
	UserID   int64
	User     TelegramUser
	AuthDate time.Time
}

// InitDataVerifier checks Telegram WebApp initData against a bot token.
// It holds no mutable state and is safe for concurrent use.
type InitDataVerifier struct {
	secretKey []byte
	maxAge    time.Duration
	now       func() time.Time
}

// NewInitDataVerifier derives the WebApp secret once. maxAge <= 0 disables the age check.
func NewInitDataVerifier(botToken string, maxAge time.Duration) *InitDataVerifier {
	return &InitDataVerifier{
		secretKey: webAppSecret(botToken),
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// WithClock returns a copy of the verifier reading time from now
func (v *InitDataVerifier) WithClock(now func() time.Time) *InitDataVerifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify validates raw initData and returns the caller identity
func (v *InitDataVerifier) Verify(raw string) (*Identity, error) {
	return verify(raw, v.secretKey, v.maxAge, v.now())
}

// VerifyInitData is the one-shot form of InitDataVerifier.Verify
func VerifyInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*Identity, error) {
	return verify(raw, webAppSecret(botToken), maxAge, now)
}

// verify evaluates every check before reporting, so the failing check is not visible in timing.
// Priority: MALFORMED, NO_HASH, BAD_HASH, FUTURE_DATED, EXPIRED, MALFORMED_USER.
func verify(raw string, secretKey []byte, maxAge time.Duration, now time.Time) (*Identity, error) {
	values, parseErr := url.ParseQuery(raw)
	if parseErr != nil {
		values = url.Values{}
	}
	supplied := values.Get("hash")
	hasHash := supplied != ""

	expected := signDataCheckString(secretKey, DataCheckString(values))
	hashOK := subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(supplied))) == 1

	authUnix, dateErr := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if dateErr != nil {
		authUnix = 0 // Missing date is treated as infinitely old
	}
	authDate := time.Unix(authUnix, 0)
	future := authDate.Sub(now) > MaxFutureSkew
	expired := authUnix <= 0 || (maxAge > 0 && now.Sub(authDate) > maxAge)

	user, userErr := parseTelegramUser(values.Get("user"))

	switch {
	case parseErr != nil:
		return nil, domain.ErrMalformed
	case !hasHash:
		return nil, domain.ErrNoHash
	case !hashOK:
		return nil, domain.ErrBadHash
	case future:
		return nil, domain.ErrFutureDated
	case expired:
		return nil, domain.ErrExpired
	case userErr != nil:
		return nil, domain.ErrMalformedUser
	}
	return &Identity{UserID: user.ID, User: user, AuthDate: authDate}, nil
}

// DataCheckString builds the canonical string: every pair except hash, sorted by key, key=value joined by \n
func DataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.Get(k))
	}
	return b.String()
}

// SignInitData returns values encoded as initData with a valid hash for botToken.
// Used by local tooling and tests to impersonate the Telegram client.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		if k != "hash" {
			signed[k] = v
		}
	}
	signed.Set("hash", signDataCheckString(webAppSecret(botToken), DataCheckString(signed)))
	return signed.Encode()
}

func webAppSecret(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

func signDataCheckString(secretKey []byte, dataCheckString string) string {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(dataCheckString))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseTelegramUser(raw string) (TelegramUser, error) {
	var user TelegramUser
	if raw == "" {
		return user, domain.ErrMalformedUser
	}
	var probe struct {
		ID json.Number `json:"id"`
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&probe); err != nil {
		return user, err
	}
	id, err := probe.ID.Int64()
	if err != nil || id <= 0 {
		return user, domain.ErrMalformedUser
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return user, err
	}
	user.ID = id
	return user, nil
}
