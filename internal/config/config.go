// Package config はサーバープロセスの設定を管理する。
// 環境変数（プレフィックス AGENDAHUB_）と任意のYAMLファイルから読み込む。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config はサーバープロセス全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `mapstructure:"port"`
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string `mapstructure:"db_path"`
	// JWTSecret はJWTトークンの署名・検証に使用するシークレット。
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowedOrigins はCORSで許可するオリジンの一覧。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// VAPIDPublicKey はWeb Push用のVAPID公開鍵。
	VAPIDPublicKey string `mapstructure:"vapid_public_key"`
	// VAPIDPrivateKey はWeb Push用のVAPID秘密鍵。
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	// VAPIDSubscriber はVAPIDクレームに設定する連絡先（mailto:形式）。
	VAPIDSubscriber string `mapstructure:"vapid_subscriber"`
	// NotificationHorizonHours は通知のrecent/archived境界（時間）。
	NotificationHorizonHours int `mapstructure:"notification_horizon_hours"`
	// ExtensionCap はアジェンダ1件あたりの期限延長回数の上限。
	ExtensionCap int `mapstructure:"extension_cap"`
	// SessionSendTimeout はライブセッション1本あたりの送信タイムアウト。
	SessionSendTimeout time.Duration `mapstructure:"session_send_timeout"`
	// ReconnectDelay はクライアントの再接続待機時間。
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// NotificationHorizon は通知のrecent/archived境界をDurationとして返す。
func (c *Config) NotificationHorizon() time.Duration {
	return time.Duration(c.NotificationHorizonHours) * time.Hour
}

// Load は設定を読み込む。
// configPathが空でなければYAMLファイルを読み、環境変数が常に優先される。
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "/data/agendahub.db")
	v.SetDefault("jwt_secret", "dev-secret-key")
	v.SetDefault("allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("vapid_public_key", "")
	v.SetDefault("vapid_private_key", "")
	v.SetDefault("vapid_subscriber", "mailto:admin@example.com")
	v.SetDefault("notification_horizon_hours", 24)
	v.SetDefault("extension_cap", 1)
	v.SetDefault("session_send_timeout", "1s")
	v.SetDefault("reconnect_delay", "3s")

	v.SetEnvPrefix("AGENDAHUB")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定のデシリアライズに失敗: %w", err)
	}
	return &cfg, nil
}
