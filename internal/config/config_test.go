package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAdminSet(t *testing.T) {
	set := ParseAdminSet(" 42, 7 ,abc,-3,,42")

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(42))
	assert.True(t, set.Contains(7))
	assert.False(t, set.Contains(-3))
	assert.False(t, set.Contains(0))
}

func TestAdminSetZeroValueDeniesEveryone(t *testing.T) {
	var set AdminSet
	assert.False(t, set.Contains(1))
	assert.Equal(t, 0, set.Len())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("INIT_DATA_MAX_AGE", "")
	t.Setenv("ADMIN_IDS", "100")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.InitDataMaxAge)
	assert.True(t, cfg.Admins.Contains(100))
}

func TestRequestTimeoutIsClamped(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "5s")
	assert.Equal(t, 25*time.Second, LoadConfig().RequestTimeout)

	t.Setenv("REQUEST_TIMEOUT", "2m")
	assert.Equal(t, 45*time.Second, LoadConfig().RequestTimeout)

	t.Setenv("REQUEST_TIMEOUT", "garbage")
	assert.Equal(t, 30*time.Second, LoadConfig().RequestTimeout)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?parseTime=true", cfg.DSN())
}

func TestSplitListTrimsBlanks(t *testing.T) {
	assert.Equal(t, []string{"https://a", "https://b"}, splitList(" https://a ,, https://b"))
	assert.Nil(t, splitList(""))
}
