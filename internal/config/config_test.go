package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := NewFromViper(NewEmptyViper())
	require.NoError(t, c.Validate())

	g := c.GetGreylist()
	assert.Equal(t, 300*time.Second, g.Window)
	assert.Equal(t, 1209600*time.Second, g.RecordLifetime)
	assert.Equal(t, 5, g.ReputationThreshold)

	s := c.GetStore()
	assert.Equal(t, StoreMemcached, s.Type)
	assert.Equal(t, []string{"127.0.0.1:11211"}, s.Servers)
	assert.Equal(t, 2*time.Second, s.Timeout)

	srv := c.GetServer()
	assert.Equal(t, "X-Sagrey", srv.FlagHeader)
	assert.Equal(t, "X-Sagrey-Reason", srv.ReasonHeader)
	assert.False(t, srv.Tempfail)

	sig := c.GetSignals()
	assert.Equal(t, "X-Spam-Status", sig.StatusHeader)
	assert.Equal(t, "GREY_FIRST_CONTACT", sig.FirstContactRule)

	e := c.GetEngine()
	assert.Equal(t, 300*time.Second, e.GreylistWindow)
	assert.Equal(t, 2*time.Second, e.StoreTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"zero window", "greylist.window", "0s"},
		{"negative lifetime", "greylist.record_lifetime", "-1h"},
		{"bad duration", "greylist.window", "five minutes"},
		{"negative threshold", "greylist.reputation_threshold", -1},
		{"zero store timeout", "store.timeout", "0s"},
		{"unknown store", "store.type", "cassandra"},
		{"bad memcached address", "store.address", "localhost"},
		{"empty memcached address", "store.address", " , "},
		{"unknown filter", "server.filter_type", "smtpd"},
		{"unknown scorer", "scorer.type", "rspamd"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewFromViper(NewEmptyViper())
			c.Set(tc.key, tc.value)
			err := c.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestValidateStoreTypes(t *testing.T) {
	c := NewFromViper(NewEmptyViper())
	c.Set("store.type", "redis")
	c.Set("store.redis_url", "http://example.org")
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c.Set("store.redis_url", "redis://cache:6379/2")
	assert.NoError(t, c.Validate())

	c.Set("store.type", "MEMORY")
	assert.NoError(t, c.Validate())

	c.Set("store.type", "memcached")
	c.Set("store.address", "10.0.0.1:11211, 10.0.0.2:11211")
	require.NoError(t, c.Validate())
	assert.Equal(t, []string{"10.0.0.1:11211", "10.0.0.2:11211"}, c.GetStore().Servers)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  filter_type: milter
  tempfail: true
greylist:
  window: 10m
  reputation_threshold: 3
store:
  type: memory
`), 0o644))

	c, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, "milter", c.GetServer().FilterType)
	assert.True(t, c.GetServer().Tempfail)
	assert.Equal(t, 10*time.Minute, c.GetGreylist().Window)
	assert.Equal(t, 3, c.GetGreylist().ReputationThreshold)
	assert.Equal(t, StoreMemory, c.GetStore().Type)
}

func TestNewEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: memory\n"), 0o644))
	t.Setenv("GREYLIST_FILTER_GREYLIST_REPUTATION_THRESHOLD", "9")

	c, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 9, c.GetGreylist().ReputationThreshold)
}

func TestNewInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("greylist:\n  window: 0s\n"), 0o644))

	_, err := New(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
