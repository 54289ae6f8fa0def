package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" || cfg.DatabasePath != "idcards.db" || cfg.AuthCookieName != "app_session" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SessionTTL != time.Hour || cfg.PhotosBaseURL != "/photos" || cfg.PhotoMatchPolicy != "exact_then_substring" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SecureCookies || cfg.AttendanceLocation == nil || cfg.AttendanceLocation.String() != "Asia/Kolkata" {
		t.Fatalf("unexpected attendance defaults %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("IDCARDS_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("IDCARDS_PHOTOS_MATCH_POLICY", "exact")
	t.Setenv("IDCARDS_HTTP_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AuthSigningSecret != "from-env" || cfg.PhotoMatchPolicy != "exact" {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "http://a.test|http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadValidates(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]interface{}
		message  string
	}{
		{name: "secret", settings: map[string]interface{}{}, message: "auth.signing_secret"},
		{name: "ttl", settings: map[string]interface{}{"auth.signing_secret": "s", "auth.session_ttl_minutes": 0}, message: "auth.session_ttl_minutes"},
		{name: "policy", settings: map[string]interface{}{"auth.signing_secret": "s", "photos.match_policy": "fuzzy"}, message: "photos.match_policy"},
		{name: "timezone", settings: map[string]interface{}{"auth.signing_secret": "s", "attendance.timezone": "Mars/Olympus"}, message: "attendance.timezone"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.message, err)
			}
		})
	}
}
