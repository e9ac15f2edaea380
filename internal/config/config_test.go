package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setRequiredEnv は必須環境変数の最小構成を設定する。
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/pcosync")
	t.Setenv("CLIENTS_FILE", "")
	t.Setenv("PCO_CLIENT_ID", "test-id")
	t.Setenv("PCO_CLIENT_SECRET", "test-secret")
	t.Setenv("PCO_DATASET", "test_dataset")
}

// DATABASE_URL未設定でエラーになることを検証
func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should name DATABASE_URL: %v", err)
	}
}

// クライアント構成が一切ない場合にエラーになることを検証
func TestLoad_MissingClientConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pcosync")
	t.Setenv("CLIENTS_FILE", "")
	t.Setenv("PCO_CLIENT_ID", "")
	t.Setenv("PCO_CLIENT_SECRET", "")
	t.Setenv("PCO_DATASET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing client configuration")
	}
}

// CLIENTS_FILEがあれば単一クライアント環境変数は不要なことを検証
func TestLoad_ClientsFileSatisfiesRequirement(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pcosync")
	t.Setenv("CLIENTS_FILE", "/etc/pcosync/clients.json")
	t.Setenv("PCO_CLIENT_ID", "")
	t.Setenv("PCO_CLIENT_SECRET", "")
	t.Setenv("PCO_DATASET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ClientsFile != "/etc/pcosync/clients.json" {
		t.Errorf("ClientsFile = %q", cfg.ClientsFile)
	}
}

// デフォルト値が適用されることを検証
func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FETCH_TIMEOUT", "")
	t.Setenv("PAGE_SIZE", "")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("SYNC_INTERVAL", "")
	t.Setenv("SERVER_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want 30s", cfg.FetchTimeout)
	}
	if cfg.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", cfg.PageSize)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.SyncInterval != 24*time.Hour {
		t.Errorf("SyncInterval = %v, want 24h", cfg.SyncInterval)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.APIRate != 5 {
		t.Errorf("APIRate = %v, want 5", cfg.APIRate)
	}
}

// 環境変数によるデフォルト上書きを検証
func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FETCH_TIMEOUT", "10s")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("SYNC_INTERVAL", "1h")
	t.Setenv("API_RATE", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", cfg.PageSize)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.APIRate != 2.5 {
		t.Errorf("APIRate = %v, want 2.5", cfg.APIRate)
	}
}

// 不正な数値が無視されデフォルトになることを検証
func TestLoad_InvalidIntFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PAGE_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PageSize != 100 {
		t.Errorf("PageSize = %d, want default 100", cfg.PageSize)
	}
}

// 単一クライアント環境変数からのクライアント構成を検証
func TestLoadClients_SingleClientFallback(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clients, err := cfg.LoadClients()
	if err != nil {
		t.Fatalf("LoadClients failed: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("clients = %d, want 1", len(clients))
	}
	if clients[0].Name != "default" {
		t.Errorf("Name = %q, want default", clients[0].Name)
	}
	if clients[0].Credentials.ClientID != "test-id" {
		t.Errorf("ClientID = %q, want test-id", clients[0].Credentials.ClientID)
	}
	if clients[0].Dataset != "test_dataset" {
		t.Errorf("Dataset = %q, want test_dataset", clients[0].Dataset)
	}
}

// JSONファイルからの複数クライアント構成を検証
func TestLoadClients_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clients.json")
	content := `[
		{
			"name": "acme",
			"api_credentials": {"client_id": "id-a", "client_secret": "secret-a"},
			"destination_dataset": "acme_analytics"
		},
		{
			"name": "globex",
			"api_credentials": {"client_id": "id-b", "client_secret": "secret-b"},
			"destination_dataset": "globex_analytics"
		}
	]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{ClientsFile: path}
	clients, err := cfg.LoadClients()
	if err != nil {
		t.Fatalf("LoadClients failed: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(clients))
	}
	if clients[1].Name != "globex" {
		t.Errorf("Name = %q, want globex", clients[1].Name)
	}
	if clients[0].Credentials.ClientSecret != "secret-a" {
		t.Errorf("ClientSecret = %q, want secret-a", clients[0].Credentials.ClientSecret)
	}
}

// 必須フィールド欠落のクライアント構成がエラーになることを検証
func TestLoadClients_MissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clients.json")
	content := `[{"name": "acme", "destination_dataset": "acme_analytics"}]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{ClientsFile: path}
	if _, err := cfg.LoadClients(); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

// 空のクライアントリストがエラーになることを検証
func TestLoadClients_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clients.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{ClientsFile: path}
	if _, err := cfg.LoadClients(); err == nil {
		t.Fatal("expected error for empty client list")
	}
}

// 存在しないファイルがエラーになることを検証
func TestLoadClients_FileNotFound(t *testing.T) {
	cfg := &Config{ClientsFile: "/nonexistent/clients.json"}
	if _, err := cfg.LoadClients(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
