package xconf

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GuardConfig 测试用配置结构体
type GuardConfig struct {
	Limiter LimiterSection `koanf:"limiter"`
	Breaker BreakerSection `koanf:"breaker"`
}

type LimiterSection struct {
	Rate      float64 `koanf:"rate"`
	Burst     int     `koanf:"burst"`
	Algorithm string  `koanf:"algorithm"`
}

type BreakerSection struct {
	MaxFailures     int    `koanf:"max_failures"`
	RecoveryTimeout string `koanf:"recovery_timeout"`
}

const testYAMLContent = `
limiter:
  rate: 100.5
  burst: 20
  algorithm: token_bucket
breaker:
  max_failures: 5
  recovery_timeout: 30s
`

const testJSONContent = `{
  "limiter": {
    "rate": 100.5,
    "burst": 20,
    "algorithm": "token_bucket"
  },
  "breaker": {
    "max_failures": 5,
    "recovery_timeout": "30s"
  }
}`

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNew(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		path := createTempFile(t, "guard.yaml", testYAMLContent)

		cfg, err := New(path)
		require.NoError(t, err)

		assert.Equal(t, FormatYAML, cfg.Format())
		assert.Equal(t, path, cfg.Path())
		assert.Equal(t, 100.5, cfg.Client().Float64("limiter.rate"))
		assert.Equal(t, 20, cfg.Client().Int("limiter.burst"))
	})

	t.Run("YMLExtension", func(t *testing.T) {
		path := createTempFile(t, "guard.yml", testYAMLContent)

		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, cfg.Format())
	})

	t.Run("JSON", func(t *testing.T) {
		path := createTempFile(t, "guard.json", testJSONContent)

		cfg, err := New(path)
		require.NoError(t, err)

		assert.Equal(t, FormatJSON, cfg.Format())
		assert.Equal(t, "token_bucket", cfg.Client().String("limiter.algorithm"))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("UnknownExtension", func(t *testing.T) {
		_, err := New("guard.toml")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, ErrLoadFailed)
	})

	t.Run("InvalidYAML", func(t *testing.T) {
		path := createTempFile(t, "bad.yaml", "limiter: [unclosed")
		_, err := New(path)
		assert.ErrorIs(t, err, ErrParseFailed)
	})
}

func TestNewFromBytes(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte(testYAMLContent), FormatYAML)
		require.NoError(t, err)

		assert.Equal(t, "", cfg.Path())
		assert.Equal(t, 5, cfg.Client().Int("breaker.max_failures"))
	})

	t.Run("JSON", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte(testJSONContent), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "30s", cfg.Client().String("breaker.recovery_timeout"))
	})

	t.Run("EmptyData", func(t *testing.T) {
		cfg, err := NewFromBytes(nil, FormatYAML)
		require.NoError(t, err)

		var gc GuardConfig
		require.NoError(t, cfg.Unmarshal("", &gc))
		assert.Zero(t, gc.Limiter.Rate)
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		_, err := NewFromBytes([]byte(testYAMLContent), Format("toml"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("ReloadUnsupported", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte(testYAMLContent), FormatYAML)
		require.NoError(t, err)
		assert.ErrorIs(t, cfg.Reload(), ErrNotReloadable)
	})
}

func TestUnmarshal(t *testing.T) {
	t.Run("WholeConfig", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte(testYAMLContent), FormatYAML)
		require.NoError(t, err)

		var gc GuardConfig
		require.NoError(t, cfg.Unmarshal("", &gc))

		assert.Equal(t, 100.5, gc.Limiter.Rate)
		assert.Equal(t, 20, gc.Limiter.Burst)
		assert.Equal(t, "token_bucket", gc.Limiter.Algorithm)
		assert.Equal(t, 5, gc.Breaker.MaxFailures)
	})

	t.Run("SubPath", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte(testYAMLContent), FormatYAML)
		require.NoError(t, err)

		var ls LimiterSection
		require.NoError(t, cfg.Unmarshal("limiter", &ls))
		assert.Equal(t, 20, ls.Burst)
	})

	t.Run("CustomTag", func(t *testing.T) {
		type tagged struct {
			Rate float64 `cfg:"rate"`
		}
		cfg, err := NewFromBytes([]byte("rate: 7.5"), FormatYAML, WithTag("cfg"))
		require.NoError(t, err)

		var v tagged
		require.NoError(t, cfg.Unmarshal("", &v))
		assert.Equal(t, 7.5, v.Rate)
	})

	t.Run("MustUnmarshalPanics", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte("limiter: {rate: not-a-number}"), FormatYAML)
		require.NoError(t, err)

		assert.Panics(t, func() {
			var ls LimiterSection
			cfg.MustUnmarshal("limiter", &ls)
		})
	})
}

func TestReload(t *testing.T) {
	t.Run("PicksUpChanges", func(t *testing.T) {
		path := createTempFile(t, "guard.yaml", "limiter:\n  rate: 10\n")
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, 10.0, cfg.Client().Float64("limiter.rate"))

		require.NoError(t, os.WriteFile(path, []byte("limiter:\n  rate: 200\n"), 0600))
		require.NoError(t, cfg.Reload())
		assert.Equal(t, 200.0, cfg.Client().Float64("limiter.rate"))
	})

	t.Run("ParseFailureKeepsOldConfig", func(t *testing.T) {
		path := createTempFile(t, "guard.yaml", "limiter:\n  rate: 10\n")
		cfg, err := New(path)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte("limiter: [broken"), 0600))
		assert.ErrorIs(t, cfg.Reload(), ErrParseFailed)

		// 在用配置不受影响
		assert.Equal(t, 10.0, cfg.Client().Float64("limiter.rate"))
	})

	t.Run("OldSnapshotStillUsable", func(t *testing.T) {
		path := createTempFile(t, "guard.yaml", "limiter:\n  rate: 10\n")
		cfg, err := New(path)
		require.NoError(t, err)

		old := cfg.Client()
		require.NoError(t, os.WriteFile(path, []byte("limiter:\n  rate: 99\n"), 0600))
		require.NoError(t, cfg.Reload())

		assert.Equal(t, 10.0, old.Float64("limiter.rate"))
		assert.Equal(t, 99.0, cfg.Client().Float64("limiter.rate"))
	})

	t.Run("ConcurrentReloadAndRead", func(t *testing.T) {
		path := createTempFile(t, "guard.yaml", "limiter:\n  rate: 10\n")
		cfg, err := New(path)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					_ = cfg.Reload()
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					_ = cfg.Client().Float64("limiter.rate")
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10.0, cfg.Client().Float64("limiter.rate"))
	})
}
