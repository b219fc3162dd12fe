package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/vsalavatov/multifs/pkg/logger"
	"github.com/vsalavatov/multifs/pkg/utils"
)

// Filename is the default configuration filename that multifs search for
const Filename = "multifs"

// Paths is the list of directories used to search for a
// configuration file
var Paths = []string{
	".",
	"$HOME/.config/multifs",
	"$XDG_CONFIG_HOME/multifs",
	"/etc/multifs",
}

const (
	// SchemeFile is the URL scheme used to configure a local disk backend.
	SchemeFile = "file"
	// SchemeMem is the URL scheme used to configure an in-memory backend.
	SchemeMem = "mem"
	// SchemeSQLite is the URL scheme used to configure a backend stored in
	// an embedded SQLite database.
	SchemeSQLite = "sqlite"
	// SchemeDrive is the URL scheme used to configure a Google Drive
	// backend.
	SchemeDrive = "drive"
	// SchemeSwift is the URL scheme used to configure a swift backend.
	SchemeSwift = "swift"
	// SchemeSwiftSecure is the URL scheme used to configure the swift backend
	// in secure mode (HTTPS).
	SchemeSwiftSecure = "swift+https"
)

// Default values for the Drive backend.
const (
	DefaultDriveBaseURL  = "https://www.googleapis.com"
	DefaultDriveAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	DefaultDriveTokenURL = "https://oauth2.googleapis.com/token"
	DefaultDriveScope    = "https://www.googleapis.com/auth/drive"

	DefaultSimpleUploadLimit = 5 << 20
	DefaultChunkSize         = 8 << 20
)

// ErrUnknownBackend is returned when asking for a backend that is not in the
// configuration.
var ErrUnknownBackend = errors.New("unknown backend")

var config *Config

var log = logger.WithNamespace("config")

// Config contains the configuration values of the application
type Config struct {
	Log      Log
	Backends map[string]*url.URL
	Drive    Drive
	Swift    Swift
	SQLite   SQLite
}

// Log contains the configuration for the logger.
type Log struct {
	Level  logger.Level
	JSON   bool
	Syslog bool
}

// Drive contains the configuration for the Google Drive backends.
type Drive struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// AccessToken can be set to use a fixed token, without OAuth flow.
	AccessToken string   `mapstructure:"access_token"`
	Scopes      []string `mapstructure:"scopes"`
	BaseURL     string   `mapstructure:"base_url"`
	AuthURL     string   `mapstructure:"auth_url"`
	TokenURL    string   `mapstructure:"token_url"`
	// TokenFile is where the tokens are cached between two runs. By default,
	// it is in the XDG config directory.
	TokenFile         string        `mapstructure:"token_file"`
	RedirectPort      int           `mapstructure:"redirect_port"`
	SimpleUploadLimit int64         `mapstructure:"simple_upload_limit"`
	ChunkSize         int64         `mapstructure:"chunk_size"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// Swift contains the configuration for the swift backends. The credentials
// are given in the URL of each backend.
type Swift struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	AuthRetries int           `mapstructure:"auth_retries"`
}

// SQLite contains the configuration for the SQLite backends.
type SQLite struct {
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// GetConfig returns the configured instance of Config
func GetConfig() *Config {
	return config
}

// Backend returns the URL of the backend with the given name.
func Backend(name string) (*url.URL, error) {
	if config == nil {
		return nil, fmt.Errorf("%w %q: configuration not loaded", ErrUnknownBackend, name)
	}
	u, ok := config.Backends[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, name)
	}
	clone := *u
	return &clone, nil
}

// BackendNames returns the sorted list of the configured backends.
func BackendNames() []string {
	if config == nil {
		return nil
	}
	names := make([]string, 0, len(config.Backends))
	for name := range config.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Setup Viper to read the environment and the optional config file
func Setup(cfgFile string) (err error) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("multifs")
	viper.AutomaticEnv()
	applyDefaults(viper.GetViper())

	var cfgFiles []string
	if cfgFile == "" {
		cfgFiles, err = findConfigFiles(Filename)
		if err != nil {
			return err
		}
	} else {
		cfgFiles = []string{cfgFile}
	}

	if len(cfgFiles) == 0 {
		return UseViper(viper.GetViper())
	}

	log.Debugf("Using config files: %s", cfgFiles)

	for _, cfgFile = range cfgFiles {
		dest, err := renderConfigFile(cfgFile)
		if err != nil {
			return err
		}

		cfgFile = regexp.MustCompile(`\.local$`).ReplaceAllString(cfgFile, "")
		if ext := filepath.Ext(cfgFile); len(ext) > 0 {
			viper.SetConfigType(ext[1:])
		}
		if err := viper.MergeConfig(dest); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				log.Errorf("Failed to read multifs configurations from %s", cfgFile)
				return err
			}
		}
	}

	return UseViper(viper.GetViper())
}

// renderConfigFile executes the configuration file as a template, so that
// it can reference the environment variables with {{.Env.NAME}}.
func renderConfigFile(cfgFile string) (*bytes.Buffer, error) {
	tmplName := filepath.Base(cfgFile)
	tmpl := template.New(tmplName)
	tmpl = tmpl.Option("missingkey=zero")
	tmpl, err := tmpl.ParseFiles(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("Unable to open and parse configuration file "+
			"template %s: %s", cfgFile, err)
	}

	dest := new(bytes.Buffer)
	ctxt := &struct {
		Env map[string]string
	}{
		Env: envMap(),
	}
	err = tmpl.ExecuteTemplate(dest, tmplName, ctxt)
	if err != nil {
		return nil, fmt.Errorf("Template error for config files %s: %s", cfgFile, err)
	}
	return dest, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.syslog", false)
	v.SetDefault("drive.base_url", DefaultDriveBaseURL)
	v.SetDefault("drive.auth_url", DefaultDriveAuthURL)
	v.SetDefault("drive.token_url", DefaultDriveTokenURL)
	v.SetDefault("drive.scopes", []string{DefaultDriveScope})
	v.SetDefault("drive.simple_upload_limit", DefaultSimpleUploadLimit)
	v.SetDefault("drive.chunk_size", DefaultChunkSize)
	v.SetDefault("drive.retry_delay", time.Second)
	v.SetDefault("drive.timeout", 5*time.Minute)
	v.SetDefault("swift.timeout", 300*time.Second)
	v.SetDefault("swift.auth_retries", 3)
	v.SetDefault("sqlite.busy_timeout", 5*time.Second)
}

func envMap() map[string]string {
	env := make(map[string]string)
	for _, i := range os.Environ() {
		sep := strings.Index(i, "=")
		env[i[0:sep]] = i[sep+1:]
	}
	return env
}

// UseViper sets the configured instance of Config
func UseViper(v *viper.Viper) error {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
		stringToURLHookFunc(),
	)))
	if err != nil {
		return fmt.Errorf("Invalid configuration: %w", err)
	}

	for name, u := range cfg.Backends {
		if err := checkBackendURL(name, u); err != nil {
			return err
		}
	}
	if cfg.Drive.ChunkSize <= 0 || cfg.Drive.ChunkSize%(256<<10) != 0 {
		return fmt.Errorf("drive.chunk_size should be a positive multiple of 256KiB, was: %d", cfg.Drive.ChunkSize)
	}

	level := "info"
	if b, err := cfg.Log.Level.MarshalText(); err == nil {
		level = string(b)
	}
	if err := logger.Init(logger.Options{
		Level:  level,
		JSON:   cfg.Log.JSON,
		Syslog: cfg.Log.Syslog,
	}); err != nil {
		return err
	}

	config = &cfg
	return nil
}

func checkBackendURL(name string, u *url.URL) error {
	if u == nil {
		return fmt.Errorf("Backend %q has no URL", name)
	}
	switch u.Scheme {
	case SchemeFile, SchemeSQLite:
		if u.Opaque != "" {
			return fmt.Errorf("Backend %q: path should be absolute, was: %q", name, u.Opaque)
		}
		if u.Host != "" {
			return fmt.Errorf("Backend %q: a %s URL has no host, was: %q (use %s:///absolute/path)", name, u.Scheme, u.Host, u.Scheme)
		}
		p := u.Path
		if p != "" && !path.IsAbs(p) {
			return fmt.Errorf("Backend %q: path should be absolute, was: %q", name, p)
		}
		if u.Scheme == SchemeSQLite && (p == "" || p == "/") {
			return fmt.Errorf("Backend %q: a database file is required", name)
		}
	case SchemeMem, SchemeDrive, SchemeSwift, SchemeSwiftSecure:
	default:
		return fmt.Errorf("Backend %q: unknown scheme %q", name, u.Scheme)
	}
	return nil
}

var urlType = reflect.TypeOf(&url.URL{})

func stringToURLHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != urlType {
			return data, nil
		}
		return url.Parse(data.(string))
	}
}

func createTestViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("multifs.test")
	v.AddConfigPath("$HOME/.config/multifs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("multifs")
	v.AutomaticEnv()
	applyDefaults(v)
	v.SetDefault("backends", map[string]string{"mem": "mem://test"})
	v.SetDefault("drive.retry_delay", time.Millisecond)
	return v
}

// UseTestFile can be used in a test file to inject a configuration
// from a multifs.test.* file. If it can not find this file in your
// $HOME/.config/multifs directory it will use the default one.
func UseTestFile(t *testing.T) {
	t.Helper()

	v := createTestViper()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			v = createTestViper()
		} else {
			t.Fatalf("fatal error test config file: %s", err)
		}
	}

	if err := UseViper(v); err != nil {
		t.Fatalf("fatal error test config file: %s", err)
	}
}

// FindConfigFile search in the Paths directories for the file with the given
// name. It returns an error if it cannot find it or if an error occurs while
// searching.
func FindConfigFile(name string) (string, error) {
	for _, cp := range Paths {
		filename := filepath.Join(utils.AbsPath(cp), name)
		ok, err := utils.FileExists(filename)
		if err != nil {
			return "", err
		}
		if ok {
			return filename, nil
		}
	}
	return "", fmt.Errorf("Could not find config file %q", name)
}

// findConfigFiles search in the Paths directories for the first existing directory,
// then look for supported Viper file for both .ext and .ext.local version, the later
// taking precedence.
func findConfigFiles(name string) ([]string, error) {
	var configFiles []string
	configFile := ""
	for _, ext := range viper.SupportedExts {
		configFile, _ = FindConfigFile(name + "." + ext)
		if configFile != "" {
			break
		}
	}
	if configFile == "" {
		return nil, nil
	}

	configFiles = append(configFiles, configFile)

	configFile += ".local"
	ok, _ := utils.FileExists(configFile)
	if ok {
		configFiles = append(configFiles, configFile)
	}

	return configFiles, nil
}
