package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIToken    = "GHL_API_TOKEN"
	EnvLocationID  = "GHL_LOCATION_ID"
	EnvBaseURL     = "GHL_API_BASE_URL"
	EnvExportDir   = "GHL_EXPORT_DIR"
	EnvStoreType   = "GHL_STORE_TYPE"
	EnvStoreDSN    = "GHL_STORE_DSN"
	EnvStoreBucket = "GHL_STORE_BUCKET"
	EnvLogLevel    = "GHL_LOG_LEVEL"
	EnvBrokers     = "GHL_KAFKA_BROKERS"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already present in the process. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays GHL_* environment variables on top of cfg. Environment
// values win over file values so credentials can live in .env.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("GHL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	keys := []string{
		"api_token", "location_id", "api_base_url", "export_dir",
		"store_type", "store_dsn", "store_bucket", "log_level", "kafka_brokers",
	}
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return err
		}
	}

	if v.IsSet("api_token") {
		cfg.API.Token = v.GetString("api_token")
	}
	if v.IsSet("location_id") {
		cfg.API.LocationID = v.GetString("location_id")
	}
	if v.IsSet("api_base_url") {
		cfg.API.BaseURL = v.GetString("api_base_url")
	}
	if v.IsSet("export_dir") {
		cfg.Export.Dir = v.GetString("export_dir")
	}
	if v.IsSet("store_type") {
		cfg.Store.Type = v.GetString("store_type")
	}
	if v.IsSet("store_dsn") {
		cfg.Store.DSN = v.GetString("store_dsn")
	}
	if v.IsSet("store_bucket") {
		cfg.Store.Bucket = v.GetString("store_bucket")
	}
	if v.IsSet("log_level") {
		cfg.Log.Level = v.GetString("log_level")
	}
	if v.IsSet("kafka_brokers") {
		cfg.Notify.Brokers = splitList(v.GetString("kafka_brokers"))
	}
	return nil
}

// Load builds the effective configuration: defaults, then the optional
// YAML file, then the environment overlay.
func Load(path string) (*Config, error) {
	cfg := NewDefault()
	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
