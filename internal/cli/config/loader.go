package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment variables read by the loader.
const EnvPrefix = "FEDPLAN_"

// searchDepth bounds the upward search for a config file.
const searchDepth = 10

var configNames = []string{DefaultConfigName, "fedplan.yml"}

// flagKeys maps command flags to the config keys they override. Flags not
// listed here are command options and never reach the config.
var flagKeys = map[string]string{
	"verbose":             "verbose",
	"output":              "output",
	"state":               "state_path",
	"default-namespace":   "default_namespace",
	"predictor-namespace": "predictor_namespace",
	"addr":                "server.addr",
	"history":             "history",
}

// last load, read by commands that reload or need the config outside a cobra context
var (
	mu             sync.Mutex
	configFileUsed string
	currentConfig  *Config
)

// loader applies the config layers in order of increasing precedence.
type loader struct {
	k     *koanf.Koanf
	cwd   string
	path  string // config file, empty when none was found
	root  string // directory relative paths resolve against
	state string // absolute --state value, when given
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	l := &loader{k: koanf.New("."), cwd: cwd, root: cwd, path: cfgFile}
	if l.path == "" {
		l.path = searchUpward(cwd)
	}

	layers := []struct {
		name string
		load func() error
	}{
		{"defaults", l.defaults},
		{"config file", l.file},
		{"environment", l.env},
		{"flags", func() error { return l.flags(flags) }},
	}
	for _, layer := range layers {
		if err := layer.load(); err != nil {
			return nil, fmt.Errorf("loading %s: %w", layer.name, err)
		}
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.Lock()
	configFileUsed, currentConfig = l.path, cfg
	mu.Unlock()
	return cfg, nil
}

func (l *loader) defaults() error {
	def := Default()
	return l.k.Load(confmap.Provider(map[string]any{
		"default_namespace":   def.DefaultNamespace,
		"predictor_namespace": def.PredictorNamespace,
		"output":              def.OutputFormat,
		"verbose":             def.Verbose,
		"state_path":          def.StatePath,
		"history":             def.History,
		"server.addr":         def.Server.Addr,
	}, "."), nil)
}

func (l *loader) file() error {
	if l.path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
		return fmt.Errorf("%s: %w", l.path, err)
	}
	if abs, err := filepath.Abs(l.path); err == nil {
		l.root = filepath.Dir(abs)
	}
	return nil
}

func (l *loader) env() error {
	return l.k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
}

// flags loads the explicitly set flags named in flagKeys.
func (l *loader) flags(fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	if f := fs.Lookup("state"); f != nil && f.Changed {
		l.state, _ = filepath.Abs(f.Value.String())
	}
	return l.k.Load(posflag.ProviderWithFlag(fs, ".", l.k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}), nil)
}

func (l *loader) decode() (*Config, error) {
	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				kindDecodeHook(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	// The hook only sees kinds that are present.
	for i := range cfg.Catalog.Integrations {
		if cfg.Catalog.Integrations[i].Kind == "" {
			cfg.Catalog.Integrations[i].Kind = catalog.KindData
		}
	}

	// A --state flag is relative to the working directory, the configured
	// path to the directory holding the config file.
	cfg.ProjectRoot = l.root
	switch {
	case l.state != "":
		cfg.StatePath = l.state
	case cfg.StatePath != "" && cfg.StatePath != ":memory:" && !filepath.IsAbs(cfg.StatePath):
		cfg.StatePath = filepath.Join(l.root, cfg.StatePath)
	}
	return &cfg, nil
}

// searchUpward returns the closest config file at or above dir.
func searchUpward(dir string) string {
	for range searchDepth {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// envKey turns FEDPLAN_SERVER_ADDR into server.addr and FEDPLAN_STATE_PATH into state_path.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "server_"); ok {
		return "server." + rest
	}
	return key
}

// kindDecodeHook parses integration kinds while decoding, so an invalid kind
// is reported against the config rather than later by the catalog.
func kindDecodeHook() mapstructure.DecodeHookFuncType {
	kindType := reflect.TypeOf(catalog.Kind(""))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != kindType || from.Kind() != reflect.String {
			return data, nil
		}
		return catalog.ParseKind(reflect.ValueOf(data).String())
	}
}

// ResetConfig forgets the last load. Used for testing.
func ResetConfig() {
	mu.Lock()
	configFileUsed, currentConfig = "", nil
	mu.Unlock()
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	mu.Lock()
	defer mu.Unlock()
	return configFileUsed
}

// GetCurrentConfig returns the most recently loaded configuration.
func GetCurrentConfig() *Config {
	mu.Lock()
	defer mu.Unlock()
	return currentConfig
}
