package config

import (
	"flag"
	"log"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ServerConfig defines process wide settings
type ServerConfig struct {
	Debug bool `koanf:"debug"`
}

// RuntimeConfig related to the Caikit inference runtime
type RuntimeConfig struct {
	Host               string `koanf:"host"`
	Port               int    `koanf:"port"`
	LocalModelsDir     string `koanf:"localmodelsdir"`
	ServiceName        string `koanf:"servicename"`
	InferenceNamespace string `koanf:"inferencenamespace"`
	TrainingNamespace  string `koanf:"trainingnamespace"`
}

// FrontendConfig related to the tab frontend
type FrontendConfig struct {
	Port        int      `koanf:"port"`
	Warmup      bool     `koanf:"warmup"`
	CORSOrigins []string `koanf:"corsorigins"`
}

// HubConfig related to the Hugging Face inference endpoint
type HubConfig struct {
	InferenceURL string        `koanf:"inferenceurl"`
	Token        string        `koanf:"token"`
	Timeout      time.Duration `koanf:"timeout"`
}

// CacheConfig related to cache
type CacheConfig struct {
	Redis struct {
		Enabled      bool          `koanf:"enabled"`
		RedisOptions redis.Options `koanf:"redisoptions"`
	}
}

// AppConfig defines
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Runtime  RuntimeConfig  `koanf:"runtime"`
	Frontend FrontendConfig `koanf:"frontend"`
	Hub      HubConfig      `koanf:"hub"`
	Cache    CacheConfig    `koanf:"cache"`
}

// Config - Global variable to export
var Config AppConfig

// Init - Assign global config to decoded config struct
func Init(filePath string) error {
	k := koanf.New(".")
	parser := yaml.Parser()

	if err := k.Load(confmap.Provider(map[string]any{
		"runtime.host":               "localhost",
		"runtime.port":               8085,
		"runtime.localmodelsdir":     "models",
		"runtime.servicename":        "HuggingFaceDemo",
		"runtime.inferencenamespace": "caikit.runtime.",
		"runtime.trainingnamespace":  "caikit.runtime.training",
		"frontend.port":              7860,
		"frontend.corsorigins":       []string{"*"},
		"hub.inferenceurl":           "https://api-inference.huggingface.co",
		"hub.timeout":                "60s",
	}, "."), nil); err != nil {
		log.Fatal(err.Error())
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), parser); err != nil {
			log.Fatal(err.Error())
		}
	}

	if err := k.Load(env.ProviderWithValue("CFG_", ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CFG_")), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return err
	}

	if err := k.Unmarshal("", &Config); err != nil {
		return err
	}

	return ValidateConfig(&Config)
}

// ValidateConfig is for custom validation rules for the configuration
func ValidateConfig(cfg *AppConfig) error {
	if cfg.Runtime.Port <= 0 {
		return errors.Errorf("invalid runtime port %d", cfg.Runtime.Port)
	}
	if cfg.Runtime.ServiceName == "" {
		return errors.New("runtime service name must not be empty")
	}
	if cfg.Runtime.InferenceNamespace == "" {
		return errors.New("runtime inference namespace must not be empty")
	}
	return nil
}

var defaultConfigPath = "config/config.yaml"

// ConfigFlag registers the flag that allows clients to specify the relative
// path to the file from which the configuration will be loaded.
func ConfigFlag(fs *flag.FlagSet) *string {
	return fs.String("file", defaultConfigPath, "configuration file")
}
