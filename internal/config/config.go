// Package config loads runtime settings from flags, environment and an optional file.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "IDCARDS"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "idcards.db"
	defaultLogLevel         = "info"
	defaultCookieName       = "app_session"
	defaultSessionTTL       = 60
	defaultPhotosDir        = "photos"
	defaultPhotosBaseURL    = "/photos"
	defaultMatchPolicy      = "exact_then_substring"
	defaultSeedDemoAccounts = false
	defaultSecureCookies    = false
	defaultAttendanceZone   = "Asia/Kolkata"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	AuthSigningSecret  string
	AuthCookieName     string
	SessionTTL         time.Duration
	PhotosDir          string
	PhotosBaseURL      string
	PhotoMatchPolicy   string
	AllowedOrigins     []string
	SeedDemoAccounts   bool
	SecureCookies      bool
	// AttendanceLocation fixes the calendar day used by the gate rule.
	AttendanceLocation *time.Location
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.session_ttl_minutes", defaultSessionTTL)
	configViper.SetDefault("auth.seed_demo_accounts", defaultSeedDemoAccounts)
	configViper.SetDefault("photos.dir", defaultPhotosDir)
	configViper.SetDefault("photos.base_url", defaultPhotosBaseURL)
	configViper.SetDefault("photos.match_policy", defaultMatchPolicy)
	configViper.SetDefault("http.secure_cookies", defaultSecureCookies)
	configViper.SetDefault("attendance.timezone", defaultAttendanceZone)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthCookieName:    configViper.GetString("auth.cookie_name"),
		SessionTTL:        time.Duration(configViper.GetInt("auth.session_ttl_minutes")) * time.Minute,
		PhotosDir:         configViper.GetString("photos.dir"),
		PhotosBaseURL:     configViper.GetString("photos.base_url"),
		PhotoMatchPolicy:  configViper.GetString("photos.match_policy"),
		AllowedOrigins:    splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		SeedDemoAccounts:  configViper.GetBool("auth.seed_demo_accounts"),
		SecureCookies:     configViper.GetBool("http.secure_cookies"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	zone := strings.TrimSpace(configViper.GetString("attendance.timezone"))
	location, err := time.LoadLocation(zone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("attendance.timezone %q: %w", zone, err)
	}
	cfg.AttendanceLocation = location

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.PhotosDir) == "" {
		return fmt.Errorf("photos.dir is required")
	}
	switch c.PhotoMatchPolicy {
	case "exact", "exact_then_substring":
	default:
		return fmt.Errorf("photos.match_policy %q is not supported", c.PhotoMatchPolicy)
	}
	return nil
}

// splitOrigins accepts both list values and a single comma-separated env value.
func splitOrigins(values []string) []string {
	origins := []string{}
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}
