package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/eeglab"
redisAddr: "localhost:6379"
sessionTTL: "24h"
`)
	t.Setenv("DATABASE_URL", "postgres://db.internal/eeglab")
	t.Setenv("EEGLAB_ALLOWED_PHOTO_EXTENSIONS", "jpg, png")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://db.internal/eeglab" {
		t.Fatalf("env override not applied: %s", cfg.DatabaseURL)
	}
	if len(cfg.AllowedPhotoExtensions) != 2 || cfg.AllowedPhotoExtensions[1] != "png" {
		t.Fatalf("csv env override not applied: %v", cfg.AllowedPhotoExtensions)
	}
	if cfg.ParseSessionTTL() != 24*time.Hour {
		t.Fatalf("unexpected session ttl: %s", cfg.ParseSessionTTL())
	}
	if cfg.GeminiModel != DefaultGeminiModel {
		t.Fatalf("empty geminiModel must get the default, got %q", cfg.GeminiModel)
	}
}

func TestValidateRejectsMissingSessionBackend(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/eeglab"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error without redisAddr or sessionSecret")
	}
}

func TestValidateRequiresCompleteMinioBlock(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/eeglab"
sessionSecret: "s3cret"
minioEndpoint: "localhost:9000"
minioAccessKey: "minio"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for incomplete minio settings")
	}
}

func TestValidateAIProvider(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/eeglab"
sessionSecret: "s3cret"
aiProvider: "openai"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for openai provider without base URL and model")
	}

	path = writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/eeglab"
sessionSecret: "s3cret"
aiProvider: "openai"
openaiBaseURL: "http://localhost:8000/v1"
openaiModel: "qwen2.5-7b-instruct"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAIModel != "qwen2.5-7b-instruct" {
		t.Fatalf("unexpected model: %s", cfg.OpenAIModel)
	}
}

func TestSessionTTLDefault(t *testing.T) {
	cfg := FileConfig{}
	if cfg.ParseSessionTTL() != 30*24*time.Hour {
		t.Fatalf("unexpected default ttl: %s", cfg.ParseSessionTTL())
	}
	cfg.SessionTTL = "garbage"
	if cfg.ParseSessionTTL() != 30*24*time.Hour {
		t.Fatal("invalid ttl must fall back to the default")
	}
}
