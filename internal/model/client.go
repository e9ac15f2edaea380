// Package model はドメインモデルを定義する。
package model

// Credentials はPlanning Center APIのBasic認証クレデンシャル。
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Client は同期対象のテナント（クライアント）を表す。
// 起動時に設定から1回生成され、実行中はイミュータブルとして扱う。
type Client struct {
	// Name はクライアントの識別名。ログとメトリクスのラベルに使用する。
	Name string `json:"name"`
	// Credentials はこのクライアント用のAPIクレデンシャル。
	Credentials Credentials `json:"api_credentials"`
	// Dataset は書き込み先データセット（PostgreSQLスキーマ名）。
	Dataset string `json:"destination_dataset"`
}
