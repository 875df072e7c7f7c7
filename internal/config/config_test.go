package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaults はデフォルト設定の読み込みを検証する。
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port: got %q, want 8080", cfg.Port)
	}
	if cfg.NotificationHorizonHours != 24 {
		t.Errorf("NotificationHorizonHours: got %d, want 24", cfg.NotificationHorizonHours)
	}
	if cfg.ExtensionCap != 1 {
		t.Errorf("ExtensionCap: got %d, want 1", cfg.ExtensionCap)
	}
	if cfg.SessionSendTimeout != time.Second {
		t.Errorf("SessionSendTimeout: got %v, want 1s", cfg.SessionSendTimeout)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay: got %v, want 3s", cfg.ReconnectDelay)
	}
	if cfg.NotificationHorizon() != 24*time.Hour {
		t.Errorf("NotificationHorizon: got %v, want 24h", cfg.NotificationHorizon())
	}
}

// TestLoadEnvOverride は環境変数による設定上書きを検証する。
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AGENDAHUB_PORT", "9090")
	t.Setenv("AGENDAHUB_JWT_SECRET", "env-secret")
	t.Setenv("AGENDAHUB_NOTIFICATION_HORIZON_HOURS", "48")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port: got %q, want 9090", cfg.Port)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret: got %q, want env-secret", cfg.JWTSecret)
	}
	if cfg.NotificationHorizonHours != 48 {
		t.Errorf("NotificationHorizonHours: got %d, want 48", cfg.NotificationHorizonHours)
	}
}

// TestLoadConfigFile はYAMLファイルからの読み込みを検証する。
func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("port: \"7070\"\nextension_cap: 2\nsession_send_timeout: 500ms\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("設定ファイルの作成に失敗: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Port: got %q, want 7070", cfg.Port)
	}
	if cfg.ExtensionCap != 2 {
		t.Errorf("ExtensionCap: got %d, want 2", cfg.ExtensionCap)
	}
	if cfg.SessionSendTimeout != 500*time.Millisecond {
		t.Errorf("SessionSendTimeout: got %v, want 500ms", cfg.SessionSendTimeout)
	}

	t.Run("存在しないファイルはエラー", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Error("エラーが返されるべきです")
		}
	})
}
