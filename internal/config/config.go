// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bottle-monitor/backend/internal/security"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StoreBackend selects the credential store: memory, postgres, redis or dynamodb.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// StoreTimeout bounds every store call.
	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT"`
	// DatabaseURL is the Postgres DSN; required for the postgres backend.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Redis settings; RedisAddr is required for the redis backend.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	// DynamoDB settings; AWSRegion is required for the dynamodb backend. A
	// non-empty DynamoDBEndpoint targets DynamoDB Local or LocalStack.
	AWSRegion            string `mapstructure:"AWS_REGION"`
	DynamoDBEndpoint     string `mapstructure:"DYNAMODB_ENDPOINT"`
	DynamoDBTablePrefix  string `mapstructure:"DYNAMODB_TABLE_PREFIX"`
	DynamoDBCreateTables bool   `mapstructure:"DYNAMODB_CREATE_TABLES"`

	// Session token signing domain. HS* algorithms use JWTSecretKey; RS256 and
	// ES256 use the PEM key pair (inline or file path).
	JWTAlgorithm  string `mapstructure:"JWT_ALGORITHM"`
	JWTSecretKey  string `mapstructure:"JWT_SECRET_KEY"`
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey  string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim stamped on both token classes.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime.
	JWTAccessTTL time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime; 0 issues non-expiring tokens.
	JWTRefreshTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`

	// Device credential signing domain; must not share key material with the session domain.
	DeviceJWTAlgorithm  string `mapstructure:"DEVICE_JWT_ALGORITHM"`
	DeviceJWTSecretKey  string `mapstructure:"DEVICE_JWT_SECRET_KEY"`
	DeviceJWTPrivateKey string `mapstructure:"DEVICE_JWT_PRIVATE_KEY"`
	DeviceJWTPublicKey  string `mapstructure:"DEVICE_JWT_PUBLIC_KEY"`

	// Argon2id cost.
	Argon2Time      uint32 `mapstructure:"ARGON2_TIME"`
	Argon2MemoryKiB uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Threads   uint8  `mapstructure:"ARGON2_THREADS"`

	// RevokeOnRefreshReuse ends every session of a principal when a stale
	// refresh token is presented. By default stale tokens are only rejected.
	RevokeOnRefreshReuse bool `mapstructure:"REVOKE_ON_REFRESH_REUSE"`

	// Google federated login (optional; all three or none).
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `mapstructure:"GOOGLE_REDIRECT_URI"`
	// FederatedMaxStates caps pending login states held in memory.
	FederatedMaxStates int `mapstructure:"FEDERATED_MAX_STATES"`

	// Audit streaming (optional). When Kafka brokers are set, audit events are
	// also written to AuditKafkaTopic.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// TrustedProxies is a comma-separated list of CIDRs or addresses whose
	// x-forwarded-for and x-real-ip headers are believed. Empty trusts none.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// OpenTelemetry (optional). Empty endpoint disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// defaults lists every key with its default; keys must be registered for
// AutomaticEnv values to reach Unmarshal.
var defaults = map[string]interface{}{
	"GRPC_ADDR":                   ":8080",
	"APP_ENV":                     "",
	"LOG_LEVEL":                   "info",
	"STORE_BACKEND":               BackendMemory,
	"STORE_TIMEOUT":               "3s",
	"DATABASE_URL":                "",
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"REDIS_KEY_PREFIX":            "bm",
	"AWS_REGION":                  "",
	"DYNAMODB_ENDPOINT":           "",
	"DYNAMODB_TABLE_PREFIX":       "",
	"DYNAMODB_CREATE_TABLES":      false,
	"JWT_ALGORITHM":               "HS256",
	"JWT_SECRET_KEY":              "",
	"JWT_PRIVATE_KEY":             "",
	"JWT_PUBLIC_KEY":              "",
	"JWT_ISSUER":                  "bottle-monitor-auth",
	"JWT_AUDIENCE":                "bottle-monitor-api",
	"JWT_ACCESS_TTL":              "15m",
	"JWT_REFRESH_TTL":             "168h", // 7d
	"DEVICE_JWT_ALGORITHM":        "HS256",
	"DEVICE_JWT_SECRET_KEY":       "",
	"DEVICE_JWT_PRIVATE_KEY":      "",
	"DEVICE_JWT_PUBLIC_KEY":       "",
	"ARGON2_TIME":                 security.DefaultArgonTime,
	"ARGON2_MEMORY_KIB":           security.DefaultArgonMemoryKiB,
	"ARGON2_THREADS":              security.DefaultArgonThreads,
	"REVOKE_ON_REFRESH_REUSE":     false,
	"GOOGLE_CLIENT_ID":            "",
	"GOOGLE_CLIENT_SECRET":        "",
	"GOOGLE_REDIRECT_URI":         "",
	"FEDERATED_MAX_STATES":        10000,
	"KAFKA_BROKERS":               "",
	"AUDIT_KAFKA_TOPIC":           "bottle-monitor-audit",
	"TRUSTED_PROXIES":             "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path.
func LoadFile(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads Config from path and the environment without validating it.
// Tools that need a single setting (e.g. cmd/migrate and DATABASE_URL) use it.
func Read(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore missing file

	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if c.JWTAccessTTL <= 0 {
		return errors.New("config: JWT_ACCESS_TTL must be positive")
	}
	if c.JWTRefreshTTL < 0 {
		return errors.New("config: JWT_REFRESH_TTL must not be negative")
	}
	if err := validateDomain("JWT", c.SessionDomainSpec()); err != nil {
		return err
	}
	if err := validateDomain("DEVICE_JWT", c.DeviceDomainSpec()); err != nil {
		return err
	}
	if sameKeyMaterial(c.SessionDomainSpec(), c.DeviceDomainSpec()) {
		return errors.New("config: session and device signing keys must differ")
	}
	if err := c.validateArgon2(); err != nil {
		return err
	}
	google := []string{c.GoogleClientID, c.GoogleClientSecret, c.GoogleRedirectURI}
	set := 0
	for _, s := range google {
		if strings.TrimSpace(s) != "" {
			set++
		}
	}
	if set != 0 && set != len(google) {
		return errors.New("config: GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI must be set together")
	}
	for _, p := range c.TrustedProxiesList() {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("config: TRUSTED_PROXIES entry %q is not a CIDR or IP address", p)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.StoreTimeout <= 0 {
		return errors.New("config: STORE_TIMEOUT must be positive")
	}
	switch c.StoreBackend {
	case BackendMemory:
		if c.Env == "production" {
			return errors.New("config: STORE_BACKEND=memory must not be used when APP_ENV=production")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for STORE_BACKEND=postgres")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set for STORE_BACKEND=redis")
		}
	case BackendDynamoDB:
		if c.AWSRegion == "" {
			return errors.New("config: AWS_REGION must be set for STORE_BACKEND=dynamodb")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

func (c *Config) validateArgon2() error {
	if c.Argon2Time < 1 {
		return errors.New("config: ARGON2_TIME must be at least 1")
	}
	if c.Argon2Threads < 1 {
		return errors.New("config: ARGON2_THREADS must be at least 1")
	}
	if c.Argon2MemoryKiB < 8*uint32(c.Argon2Threads) {
		return errors.New("config: ARGON2_MEMORY_KIB must be at least 8 * ARGON2_THREADS")
	}
	return nil
}

func validateDomain(prefix string, spec security.DomainSpec) error {
	switch strings.ToUpper(strings.TrimSpace(spec.Algorithm)) {
	case "HS256", "HS384", "HS512":
		if spec.Secret == "" {
			return fmt.Errorf("config: %s_SECRET_KEY must be set", prefix)
		}
	case "RS256", "ES256":
		if spec.PrivateKey == "" || spec.PublicKey == "" {
			return fmt.Errorf("config: %s_PRIVATE_KEY and %s_PUBLIC_KEY must be set", prefix, prefix)
		}
	default:
		return fmt.Errorf("config: unsupported %s_ALGORITHM %q", prefix, spec.Algorithm)
	}
	return nil
}

// sameKeyMaterial reports configured key material that is textually identical.
// Parsed keys are compared again when the token provider is built.
func sameKeyMaterial(a, b security.DomainSpec) bool {
	if a.Secret != "" && a.Secret == b.Secret {
		return true
	}
	return a.PublicKey != "" && a.PublicKey == b.PublicKey
}

// SessionDomainSpec returns the session signing domain settings.
func (c *Config) SessionDomainSpec() security.DomainSpec {
	return security.DomainSpec{
		Algorithm:  c.JWTAlgorithm,
		Secret:     c.JWTSecretKey,
		PrivateKey: c.JWTPrivateKey,
		PublicKey:  c.JWTPublicKey,
	}
}

// DeviceDomainSpec returns the device signing domain settings.
func (c *Config) DeviceDomainSpec() security.DomainSpec {
	return security.DomainSpec{
		Algorithm:  c.DeviceJWTAlgorithm,
		Secret:     c.DeviceJWTSecretKey,
		PrivateKey: c.DeviceJWTPrivateKey,
		PublicKey:  c.DeviceJWTPublicKey,
	}
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if audit streaming is enabled (non-empty list) and to create the writer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// TrustedProxiesList returns the configured trusted proxy networks.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// GoogleEnabled reports whether Google federated login is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURI != ""
}
