package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shootingstick/ss"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "couch", cfg.ViewRoot)
	assert.Equal(t, "0.0.0.0:5984", cfg.HTTPAddress)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 4, cfg.UpdateParallelism)
	assert.Equal(t, 5*time.Second, cfg.ScriptTimeout)
	assert.Equal(t, ss.CompressZstd, cfg.Compression)
	assert.Equal(t, 1024, cfg.CompressThreshold)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SHOOTINGSTICK_DATA_DIR", "/var/lib/ss")
	t.Setenv("SHOOTINGSTICK_UPDATE_BATCH_SIZE", "500")
	t.Setenv("SHOOTINGSTICK_SCRIPT_TIMEOUT", "250ms")
	t.Setenv("SHOOTINGSTICK_STORE_COMPRESSION", "lz4")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ss", cfg.DataDir)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.ScriptTimeout)
	assert.Equal(t, ss.CompressLZ4, cfg.Compression)

	opt := cfg.StoreOptions()
	assert.Equal(t, 500, opt.BatchSize)
	assert.Equal(t, "couch", opt.ViewRoot)
	assert.Equal(t, ss.CompressLZ4, opt.Compression)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]any{
		"data.dir":                 " ",
		"views.root":               "",
		"update.batch_size":        0,
		"update.parallelism":       -1,
		"script.timeout":           "0s",
		"store.compression":        "gzip",
		"store.compress_threshold": -1,
	}
	for key, val := range tests {
		v := NewViper()
		v.Set(key, val)
		_, err := Load(v)
		assert.Error(t, err, key)
	}
}
