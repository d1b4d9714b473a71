package factory

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/adapters/filter"
	"github.com/mikey/greylist-filter/internal/adapters/scorer"
	"github.com/mikey/greylist-filter/internal/adapters/store"
	"github.com/mikey/greylist-filter/internal/config"
	"github.com/mikey/greylist-filter/internal/core"
	"github.com/mikey/greylist-filter/internal/utils"
)

func testConfig() *config.Config {
	return config.NewFromViper(config.NewEmptyViper())
}

func TestCreateStore(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		settings map[string]interface{}
		check    func(t *testing.T, s interface{})
	}{
		{
			name:     "memcached",
			settings: map[string]interface{}{"store.type": "memcached"},
			check: func(t *testing.T, s interface{}) {
				assert.IsType(t, &store.MemcachedStore{}, s)
			},
		},
		{
			name:     "redis",
			settings: map[string]interface{}{"store.type": "redis"},
			check: func(t *testing.T, s interface{}) {
				assert.IsType(t, &store.RedisStore{}, s)
			},
		},
		{
			name:     "memory",
			settings: map[string]interface{}{"store.type": "memory"},
			check: func(t *testing.T, s interface{}) {
				assert.IsType(t, &store.MemoryStore{}, s)
			},
		},
		{
			name: "sqlite",
			settings: map[string]interface{}{
				"store.type":        "sqlite",
				"store.sqlite_path": filepath.Join(dir, "nested", "greylist.db"),
			},
			check: func(t *testing.T, s interface{}) {
				assert.IsType(t, &store.SQLiteStore{}, s)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			for k, v := range tc.settings {
				cfg.Set(k, v)
			}
			s, err := NewStoreFactory(cfg, zap.NewNop()).CreateStore()
			require.NoError(t, err)
			defer s.Stop()
			tc.check(t, s)
		})
	}

	cfg := testConfig()
	cfg.Set("store.type", "cassandra")
	_, err := NewStoreFactory(cfg, zap.NewNop()).CreateStore()
	assert.Error(t, err)
}

func TestCreateScorer(t *testing.T) {
	cfg := testConfig()
	s, err := NewScorerFactory(cfg, zap.NewNop()).CreateScorer()
	require.NoError(t, err)
	assert.IsType(t, &scorer.HeaderScorer{}, s)

	cfg.Set("scorer.type", "spamc")
	s, err = NewScorerFactory(cfg, zap.NewNop()).CreateScorer()
	require.NoError(t, err)
	assert.IsType(t, &scorer.SpamcScorer{}, s)
}

func TestCreateEmailFilter(t *testing.T) {
	cfg := testConfig()
	kv := store.NewMemoryStore(zap.NewNop(), 0)
	engine := core.NewEngine(cfg.GetEngine(), core.NewReputationStore(kv), core.NewRecordStore(kv), nil, zap.NewNop(), nil)
	processor := filter.NewProcessor(
		engine,
		scorer.NewHeaderScorer("X-Spam-Status", "GREY_FIRST_CONTACT"),
		utils.NewTextProcessor(zap.NewNop()),
		HeaderNames(cfg),
		zap.NewNop(),
	)

	for typ, want := range map[string]interface{}{
		"postfix": &filter.PostfixFilter{},
		"milter":  &filter.MilterFilter{},
		"cli":     &filter.CliFilter{},
	} {
		cfg.Set("server.filter_type", typ)
		f, err := NewFilterFactory(cfg, zap.NewNop(), processor).CreateEmailFilter()
		require.NoError(t, err)
		assert.IsType(t, want, f)
	}

	cfg.Set("server.filter_type", "smtpd")
	_, err := NewFilterFactory(cfg, zap.NewNop(), processor).CreateEmailFilter()
	assert.Error(t, err)
}

func TestNewWhitelistHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist")
	require.NoError(t, os.WriteFile(path, []byte("10.0.0.0/8\n"), 0o644))

	cfg := testConfig()
	cfg.Set("greylist.whitelist_file", path)
	h, err := NewWhitelistHolder(cfg, zap.NewNop())
	require.NoError(t, err)
	_, ok := h.MatchIP(netip.MustParseAddr("10.1.1.1"))
	assert.True(t, ok)

	cfg.Set("greylist.whitelist_file", path+".missing")
	h, err = NewWhitelistHolder(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, h.Current().Len())
}
