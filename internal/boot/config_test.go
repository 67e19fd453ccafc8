package boot

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// unsetenv clears variables for the duration of the test; t.Setenv registers
// the restore before the variable is removed.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	assert := assert.New(t)

	unsetenv(t, "ENV", "ADDR", "BLUESKY_PDS_URL", "POST_TIMEOUT")

	cfg, err := Load()
	assert.NoError(err)
	assert.Equal(":8080", cfg.Addr)
	assert.Equal("https://bsky.social", cfg.BlueskyPDSURL)
	assert.Equal(60*time.Second, cfg.PostTimeout)
	assert.True(cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("ENV", "production")
	t.Setenv("ADDR", ":9000")
	t.Setenv("POST_TIMEOUT", "15s")
	t.Setenv("TWITTER_CLIENT_ID", "cid")

	cfg, err := Load()
	assert.NoError(err)
	assert.Equal(":9000", cfg.Addr)
	assert.Equal(15*time.Second, cfg.PostTimeout)
	assert.Equal("cid", cfg.TwitterClientID)
	assert.False(cfg.IsDevelopment())
}
