// Package config loads all environment variables for the evidence-registry service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageDriver selects the object-store backend (spec.md §9: sum type, not
// a dynamic ad-hoc driver factory).
type StorageDriver string

const (
	StorageDriverS3    StorageDriver = "s3"
	StorageDriverLocal StorageDriver = "local"
)

// ReplicaDriver selects the secondary content-addressed replica backend.
type ReplicaDriver string

const (
	ReplicaDriverNone       ReplicaDriver = "none"
	ReplicaDriverSelfHosted ReplicaDriver = "selfhosted"
	ReplicaDriverThirdParty ReplicaDriver = "thirdparty"
)

// Config holds all configuration for the evidence-registry service.
type Config struct {
	// Server
	APIHost string
	APIPort string

	// Database
	DatabaseURL string

	// Object store
	StorageDriver    StorageDriver
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3ForcePathStyle bool
	LocalStorageRoot string

	// Upload limits
	MaxUploadBytes int64
	PublicRead     bool

	// Auth
	HMACAppKeys   map[string]string
	JWTSecret     string
	JWTAudience   string
	CORSAllowlist []string

	// Secondary replica (IPFS)
	ReplicaDriver      ReplicaDriver
	IPFSAPIURL         string
	IPFSGatewayURL     string
	IPFSPinServiceURL  string
	IPFSPinServiceKey  string

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Sessions
	SessionTTLMinutes int
	PresignTTLSeconds int

	LogLevel string
}

// ValidationError accumulates every invalid or missing configuration field,
// per spec.md §9's "structured error that lists every failing field" note.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Fields, "; "))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Fields = append(e.Fields, fmt.Sprintf(format, args...))
}

// Load reads configuration from environment variables, validates it, and
// returns an immutable Config. Build → validate → freeze: once Load
// returns successfully the Config is never mutated again.
func Load() (*Config, error) {
	cfg := &Config{
		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envOr("PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageDriver:    StorageDriver(envOr("STORAGE_DRIVER", string(StorageDriverLocal))),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3ForcePathStyle: envBool("S3_FORCE_PATH_STYLE", true),
		LocalStorageRoot: envOr("LOCAL_STORAGE_ROOT", "./data/objects"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52_428_800),
		PublicRead:     envBool("PUBLIC_READ", false),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTAudience:   envOr("JWT_AUDIENCE", "evidence-registry"),
		CORSAllowlist: splitCSV(os.Getenv("CORS_ALLOWLIST")),

		ReplicaDriver:     ReplicaDriver(envOr("IPFS_MODE", string(ReplicaDriverNone))),
		IPFSAPIURL:        os.Getenv("IPFS_API_URL"),
		IPFSGatewayURL:    envOr("IPFS_GATEWAY_URL", "https://ipfs.io"),
		IPFSPinServiceURL: os.Getenv("IPFS_PIN_SERVICE_URL"),
		IPFSPinServiceKey: os.Getenv("IPFS_PIN_SERVICE_KEY"),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,

		SessionTTLMinutes: envInt("SESSION_TTL_MINUTES", 5),
		PresignTTLSeconds: envInt("PRESIGN_TTL_SECONDS", 300),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	hmacKeys, hmacErr := parseHMACAppKeys(os.Getenv("HMAC_APP_KEYS"))
	cfg.HMACAppKeys = hmacKeys

	if verr := cfg.validate(); verr != nil || hmacErr != nil {
		all := &ValidationError{}
		if hmacErr != nil {
			all.add("%s", hmacErr.Error())
		}
		if verr != nil {
			all.Fields = append(all.Fields, verr.(*ValidationError).Fields...)
		}
		return nil, all
	}

	return cfg, nil
}

func (c *Config) validate() error {
	verr := &ValidationError{}

	if c.DatabaseURL == "" {
		verr.add("DATABASE_URL is required")
	}
	if len(c.HMACAppKeys) == 0 {
		verr.add("HMAC_APP_KEYS must configure at least one app:secret pair")
	}
	switch c.StorageDriver {
	case StorageDriverS3:
		if c.S3Bucket == "" {
			verr.add("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	case StorageDriverLocal:
		if c.LocalStorageRoot == "" {
			verr.add("LOCAL_STORAGE_ROOT is required when STORAGE_DRIVER=local")
		}
	default:
		verr.add("STORAGE_DRIVER must be one of: s3, local (got %q)", c.StorageDriver)
	}
	switch c.ReplicaDriver {
	case ReplicaDriverNone:
	case ReplicaDriverSelfHosted:
		if c.IPFSAPIURL == "" {
			verr.add("IPFS_API_URL is required when IPFS_MODE=selfhosted")
		}
	case ReplicaDriverThirdParty:
		if c.IPFSPinServiceURL == "" || c.IPFSPinServiceKey == "" {
			verr.add("IPFS_PIN_SERVICE_URL and IPFS_PIN_SERVICE_KEY are required when IPFS_MODE=thirdparty")
		}
	default:
		verr.add("IPFS_MODE must be one of: none, selfhosted, thirdparty (got %q)", c.ReplicaDriver)
	}
	if c.MaxUploadBytes <= 0 {
		verr.add("MAX_UPLOAD_BYTES must be positive")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// Addr returns the listen address as "host:port".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.APIHost, c.APIPort)
}

// SessionTTL returns the upload session lifetime as a time.Duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// PresignTTL returns the presigned-URL lifetime as a time.Duration.
func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.PresignTTLSeconds) * time.Second
}

// UploadTokenSecret returns the stable process-wide secret used to sign
// ephemeral upload tokens. Falls back to JWTSecret so a deployment that
// configures only one secret still gets a meaningfully verifiable token —
// per spec.md §9's correction of the source's per-token random-secret bug.
func (c *Config) UploadTokenSecret() string {
	if v := os.Getenv("UPLOAD_TOKEN_SECRET"); v != "" {
		return v
	}
	return c.JWTSecret
}

func parseHMACAppKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	if raw == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("HMAC_APP_KEYS entry %q must be app:secret", pair)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
