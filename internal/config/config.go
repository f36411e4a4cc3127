package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type LoadPolicy string

const (
	LoadPolicyLazy  LoadPolicy = "lazy"
	LoadPolicyBatch LoadPolicy = "batch"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	Query         QueryConfig
	Cache         CacheConfig
	Pages         PagesConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WarehouseConfig holds the credential bundle and the optional ambient session.
type WarehouseConfig struct {
	Driver        string
	Account       string
	User          string
	Password      string
	Warehouse     string
	Database      string
	Schema        string
	AmbientDriver string
	AmbientDSN    string
	ProbeTimeout  time.Duration
}

type QueryConfig struct {
	MaxRetries int
	Backoff    time.Duration
}

type CacheConfig struct {
	TTL             time.Duration
	LoadPolicy      LoadPolicy
	CacheFailures   bool
	WarmConcurrency int
}

type PagesConfig struct {
	File string
}

type ArchiveConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	KeepSnapshots    int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("PRICEDASH_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid PRICEDASH_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "PRICEDASH_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "PRICEDASH_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "PRICEDASH_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "PRICEDASH_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_WAREHOUSE_ACCOUNT", &cfg.Warehouse.Account); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_WAREHOUSE_USER", &cfg.Warehouse.User); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_WAREHOUSE_PASSWORD", &cfg.Warehouse.Password); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_WAREHOUSE_WAREHOUSE", &cfg.Warehouse.Warehouse); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_WAREHOUSE_DATABASE", &cfg.Warehouse.Database); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_WAREHOUSE_SCHEMA", &cfg.Warehouse.Schema); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_AMBIENT_DRIVER", &cfg.Warehouse.AmbientDriver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_AMBIENT_DSN", &cfg.Warehouse.AmbientDSN); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "PRICEDASH_WAREHOUSE_PROBE_TIMEOUT", &cfg.Warehouse.ProbeTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "PRICEDASH_QUERY_MAX_RETRIES", &cfg.Query.MaxRetries); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "PRICEDASH_QUERY_BACKOFF", &cfg.Query.Backoff); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "PRICEDASH_CACHE_TTL", &cfg.Cache.TTL); err != nil {
		return Config{}, err
	}
	if err := applyLoadPolicy(lookup, "PRICEDASH_CACHE_LOAD_POLICY", &cfg.Cache.LoadPolicy); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "PRICEDASH_CACHE_FAILURES", &cfg.Cache.CacheFailures); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "PRICEDASH_CACHE_WARM_CONCURRENCY", &cfg.Cache.WarmConcurrency); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_PAGES_FILE", &cfg.Pages.File); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "PRICEDASH_ARCHIVE_ENABLED", &cfg.Archive.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_ARCHIVE_ENDPOINT", &cfg.Archive.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_ARCHIVE_REGION", &cfg.Archive.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_ARCHIVE_BUCKET", &cfg.Archive.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_ARCHIVE_ACCESS_KEY", &cfg.Archive.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_ARCHIVE_SECRET_KEY", &cfg.Archive.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "PRICEDASH_ARCHIVE_USE_SSL", &cfg.Archive.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_ARCHIVE_PREFIX", &cfg.Archive.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "PRICEDASH_ARCHIVE_AUTO_CREATE_BUCKET", &cfg.Archive.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "PRICEDASH_ARCHIVE_KEEP_SNAPSHOTS", &cfg.Archive.KeepSnapshots); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "PRICEDASH_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "PRICEDASH_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "PRICEDASH_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PRICEDASH_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Warehouse.Driver {
	case "snowflake", "postgres", "duckdb":
	default:
		return fmt.Errorf("invalid PRICEDASH_WAREHOUSE_DRIVER: %q", c.Warehouse.Driver)
	}
	if c.Warehouse.AmbientDSN != "" && c.Warehouse.AmbientDriver == "" {
		return fmt.Errorf("PRICEDASH_AMBIENT_DRIVER is required when PRICEDASH_AMBIENT_DSN is set")
	}
	if c.Query.MaxRetries < 0 {
		return fmt.Errorf("query max retries must be >= 0")
	}
	if c.Query.Backoff < 0 {
		return fmt.Errorf("query backoff must be >= 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be > 0")
	}
	if c.Cache.WarmConcurrency <= 0 {
		return fmt.Errorf("cache warm concurrency must be > 0")
	}
	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("archive endpoint is required when archive is enabled")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive bucket is required when archive is enabled")
		}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "pricedash-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:       "snowflake",
			ProbeTimeout: 10 * time.Second,
		},
		Query: QueryConfig{
			MaxRetries: 2,
			Backoff:    time.Second,
		},
		Cache: CacheConfig{
			TTL:             24 * time.Hour,
			LoadPolicy:      LoadPolicyLazy,
			CacheFailures:   true,
			WarmConcurrency: 2,
		},
		Archive: ArchiveConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "pricedash",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
			KeepSnapshots:    7,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileDev:
		cfg.Warehouse.Driver = "duckdb"
		cfg.Warehouse.Database = "pricedash.duckdb"
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Warehouse.Driver = "duckdb"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Query.Backoff = 10 * time.Millisecond
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Archive.UseSSL = true
		cfg.Archive.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLoadPolicy(lookup LookupFunc, key string, dst *LoadPolicy) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	policy := LoadPolicy(strings.ToLower(strings.TrimSpace(raw)))
	switch policy {
	case LoadPolicyLazy, LoadPolicyBatch:
		*dst = policy
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
