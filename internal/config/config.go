// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hitoshi/pcosync/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Clients
	ClientsFile string

	// 単一クライアント構成のフォールバック（ClientsFile未設定時）
	PCOClientID     string
	PCOClientSecret string
	PCODataset      string

	// Fetch
	FetchTimeout time.Duration
	PageSize     int
	APIRate      float64
	APIBurst     int

	// Sync
	BatchSize    int
	SyncInterval time.Duration

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ClientsFile = os.Getenv("CLIENTS_FILE")
	cfg.PCOClientID = os.Getenv("PCO_CLIENT_ID")
	cfg.PCOClientSecret = os.Getenv("PCO_CLIENT_SECRET")
	cfg.PCODataset = os.Getenv("PCO_DATASET")

	// クライアント構成はファイルか単一クライアント環境変数のどちらかが必要
	if cfg.ClientsFile == "" && (cfg.PCOClientID == "" || cfg.PCOClientSecret == "" || cfg.PCODataset == "") {
		missing = append(missing, "CLIENTS_FILE or PCO_CLIENT_ID/PCO_CLIENT_SECRET/PCO_DATASET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.PageSize = getEnvInt("PAGE_SIZE", 100)
	cfg.APIRate = getEnvFloat("API_RATE", 5)
	cfg.APIBurst = getEnvInt("API_BURST", 5)
	cfg.BatchSize = getEnvInt("BATCH_SIZE", 500)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// LoadClients はクライアント構成を読み込む。
// CLIENTS_FILEが設定されていればJSONファイルから全クライアントを読み、
// 未設定なら単一クライアント環境変数から1件を構成する。
func (c *Config) LoadClients() ([]model.Client, error) {
	if c.ClientsFile != "" {
		data, err := os.ReadFile(c.ClientsFile)
		if err != nil {
			return nil, fmt.Errorf("クライアント構成ファイルの読み込みに失敗しました: %w", err)
		}

		var clients []model.Client
		if err := json.Unmarshal(data, &clients); err != nil {
			return nil, fmt.Errorf("クライアント構成ファイルの解析に失敗しました: %w", err)
		}
		if len(clients) == 0 {
			return nil, fmt.Errorf("クライアント構成ファイルにクライアントが定義されていません: %s", c.ClientsFile)
		}

		for i, client := range clients {
			if client.Name == "" || client.Dataset == "" ||
				client.Credentials.ClientID == "" || client.Credentials.ClientSecret == "" {
				return nil, fmt.Errorf("クライアント構成 %d 件目に必須フィールドが欠けています", i+1)
			}
		}
		return clients, nil
	}

	return []model.Client{{
		Name: "default",
		Credentials: model.Credentials{
			ClientID:     c.PCOClientID,
			ClientSecret: c.PCOClientSecret,
		},
		Dataset: c.PCODataset,
	}}, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
