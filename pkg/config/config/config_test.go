package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsalavatov/multifs/pkg/logger"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	applyDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return v
}

func TestUseTestFile(t *testing.T) {
	UseTestFile(t)

	cfg := GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"mem"}, BackendNames())
	u, err := Backend("mem")
	require.NoError(t, err)
	assert.Equal(t, SchemeMem, u.Scheme)
	assert.Equal(t, int64(DefaultChunkSize), cfg.Drive.ChunkSize)
	assert.Equal(t, time.Millisecond, cfg.Drive.RetryDelay)

	_, err = Backend("nope")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestUseViper(t *testing.T) {
	t.Cleanup(func() { _ = logger.Init(logger.Options{Level: "info"}) })

	t.Run("Backends", func(t *testing.T) {
		v := newViper(t, `
log:
  level: debug
backends:
  home: file:///home/alice
  db: sqlite:///var/lib/multifs/files.db
  cloud: drive://
  store: swift://localhost/?UserName=alice&Password=secret&Container=files
drive:
  client_id: my-client
  retry_delay: 250ms
  chunk_size: 524288
swift:
  timeout: 1m
`)
		require.NoError(t, UseViper(v))

		cfg := GetConfig()
		assert.Equal(t, logger.DebugLevel, cfg.Log.Level)
		assert.Equal(t, []string{"cloud", "db", "home", "store"}, BackendNames())
		assert.Equal(t, "/home/alice", cfg.Backends["home"].Path)
		assert.Equal(t, SchemeSQLite, cfg.Backends["db"].Scheme)
		assert.Equal(t, "files", cfg.Backends["store"].Query().Get("Container"))
		assert.Equal(t, "my-client", cfg.Drive.ClientID)
		assert.Equal(t, DefaultDriveBaseURL, cfg.Drive.BaseURL)
		assert.Equal(t, []string{DefaultDriveScope}, cfg.Drive.Scopes)
		assert.Equal(t, 250*time.Millisecond, cfg.Drive.RetryDelay)
		assert.Equal(t, int64(512<<10), cfg.Drive.ChunkSize)
		assert.Equal(t, time.Minute, cfg.Swift.Timeout)
		assert.Equal(t, 5*time.Second, cfg.SQLite.BusyTimeout)
	})

	t.Run("RelativePath", func(t *testing.T) {
		v := newViper(t, `
backends:
  home: file://relative/path
`)
		err := UseViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no host")

		v = newViper(t, `
backends:
  db: sqlite://relative/files.db
`)
		assert.Error(t, UseViper(v))

		v = newViper(t, `
backends:
  home: file:relative/path
`)
		assert.Error(t, UseViper(v))
	})

	t.Run("UnknownScheme", func(t *testing.T) {
		v := newViper(t, `
backends:
  ftp: ftp://example.org/
`)
		err := UseViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown scheme")
	})

	t.Run("SQLiteWithoutFile", func(t *testing.T) {
		v := newViper(t, `
backends:
  db: sqlite:///
`)
		assert.Error(t, UseViper(v))
	})

	t.Run("BadChunkSize", func(t *testing.T) {
		v := newViper(t, `
drive:
  chunk_size: 1000
`)
		assert.Error(t, UseViper(v))
	})

	t.Run("BadLevel", func(t *testing.T) {
		v := newViper(t, `
log:
  level: verbose
`)
		assert.Error(t, UseViper(v))
	})
}

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		_ = logger.Init(logger.Options{Level: "info"})
	})

	dir := t.TempDir()
	t.Setenv("MULTIFS_TEST_ROOT", dir)
	cfgFile := filepath.Join(dir, "multifs.yaml")
	content := `
backends:
  local: file://{{.Env.MULTIFS_TEST_ROOT}}
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0600))

	require.NoError(t, Setup(cfgFile))
	u, err := Backend("local")
	require.NoError(t, err)
	assert.Equal(t, dir, u.Path)
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	old := Paths
	Paths = []string{dir}
	t.Cleanup(func() { Paths = old })

	files, err := findConfigFiles(Filename)
	require.NoError(t, err)
	assert.Empty(t, files)

	main := filepath.Join(dir, "multifs.yaml")
	require.NoError(t, os.WriteFile(main, []byte("log:\n  level: info\n"), 0600))
	require.NoError(t, os.WriteFile(main+".local", []byte("log:\n  level: debug\n"), 0600))

	files, err = findConfigFiles(Filename)
	require.NoError(t, err)
	assert.Equal(t, []string{main, main + ".local"}, files)
}
