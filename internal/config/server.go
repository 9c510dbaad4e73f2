package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Server holds the gateway configuration.
type Server struct {
	Env  string
	Port string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	SQLitePath    string

	// Session tokens: either one secret or a rotating key set.
	JWTSecret    string
	JWTKeys      map[string]string
	JWTActiveKid string
	TokenTTL     time.Duration

	GoogleClientID string

	RateLimitRPM int
	// WindowSize caps the live window a subscriber may request.
	WindowSize int

	TLSCert    string
	TLSKey     string
	RequireTLS bool

	RedisURL    string
	MetricsAddr string
}

// LoadServer reads the gateway configuration from the environment.
func LoadServer() (*Server, error) {
	loadDotEnv()

	cfg := &Server{
		Env:            getEnv("ENV", "development"),
		Port:           getEnv("PORT", "50051"),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:       getEnv("MONGODB_URI", ""),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "feedchat"),
		SQLitePath:     getEnv("SQLITE_PATH", "feedchat.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTActiveKid:   getEnv("JWT_ACTIVE_KID", ""),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 24*time.Hour),
		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 60),
		WindowSize:     getEnvInt("WINDOW_SIZE", 50),
		TLSCert:        getEnv("TLS_CERT", ""),
		TLSKey:         getEnv("TLS_KEY", ""),
		RequireTLS:     getEnvBool("REQUIRE_TLS", false),
		RedisURL:       getEnv("REDIS_URL", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
	}

	if v := getEnv("JWT_KEYS", ""); v != "" {
		keys, err := parseKeys(v)
		if err != nil {
			return nil, err
		}
		cfg.JWTKeys = keys
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Server) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI must be set when STORE_DRIVER=mongo"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH must be set when STORE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if len(c.JWTKeys) == 0 && c.JWTSecret == "" {
		errs = append(errs, errors.New("either JWT_SECRET or JWT_KEYS must be set"))
	}
	if len(c.JWTKeys) > 0 {
		if _, ok := c.JWTKeys[c.JWTActiveKid]; !ok {
			errs = append(errs, fmt.Errorf("JWT_ACTIVE_KID %q is not in JWT_KEYS", c.JWTActiveKid))
		}
	}
	if c.GoogleClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID must be set"))
	}
	if c.RequireTLS && (c.TLSCert == "" || c.TLSKey == "") {
		errs = append(errs, errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured"))
	}
	return errors.Join(errs...)
}

// ListenAddr is the gRPC listen address.
func (c *Server) ListenAddr() string {
	return fmt.Sprintf(":%s", c.Port)
}
