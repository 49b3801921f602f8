package config

import (
	"strings"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("AUDIO_BUCKET", "track-audios")
	t.Setenv("COVER_BUCKET", "track-cover-images")
	t.Setenv("MAX_UPLOAD_SIZE", "not-a-number")
	t.Setenv("REQUIRE_MEDIA_ON_FINALIZE", "maybe")

	cfg := FromEnv()
	if cfg.Port != "3000" {
		t.Errorf("expected port 3000, got %q", cfg.Port)
	}
	if cfg.MaxUploadSize != 100<<20 {
		t.Errorf("expected fallback upload size, got %d", cfg.MaxUploadSize)
	}
	if cfg.RequireMediaOnFinalize {
		t.Error("expected unparsable bool to fall back to false")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://project.example.co/")
	t.Setenv("SUPABASE_KEY", "service-key")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("REQUIRE_MEDIA_ON_FINALIZE", "1")
	t.Setenv("LOG_MAX_SIZE", "12")

	cfg := FromEnv()
	if cfg.SupabaseURL != "https://project.example.co" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.SupabaseURL)
	}
	if got := cfg.AuthURL(); got != "https://project.example.co/auth/v1" {
		t.Errorf("unexpected auth url %q", got)
	}
	if !cfg.StorageUseSSL || !cfg.RequireMediaOnFinalize {
		t.Error("expected bool overrides to apply")
	}
	if cfg.LogMaxSize != 12 {
		t.Errorf("expected log max size 12, got %d", cfg.LogMaxSize)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{AudioBucket: "same", CoverBucket: "same"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"SUPABASE_URL", "SUPABASE_KEY", "DATABASE_URL", "must differ"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}

	cfg = &Config{
		SupabaseURL: "https://x", SupabaseKey: "k", DatabaseURL: "postgres://",
		AudioBucket: "a", CoverBucket: "c",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
