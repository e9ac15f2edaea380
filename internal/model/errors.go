package model

import "fmt"

// TransportError はページネーション中のネットワーク障害または非2xx応答を表す。
// フェッチループはこのエラーで打ち切られるが、取得済みページは破棄されない。
type TransportError struct {
	URL    string // 失敗したリクエストのURL
	Status int    // HTTPステータスコード（接続自体が失敗した場合は0）
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("転送エラー: %s がステータス %d を返しました", e.URL, e.Status)
	}
	return fmt.Sprintf("転送エラー: %s: %v", e.URL, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *TransportError) Unwrap() error { return e.Err }

// WriteError は書き込み先テーブルへのINSERTまたはMERGEの失敗を表す。
// チャンク単位で記録され、後続チャンクや他エンドポイントの処理は継続する。
type WriteError struct {
	Table string // 書き込み先テーブル（dataset.table形式）
	Chunk int    // 失敗したチャンク番号（0起点）
	Err   error
}

// Error はerrorインターフェースを実装する。
func (e *WriteError) Error() string {
	return fmt.Sprintf("書き込みエラー: テーブル %s チャンク %d: %v", e.Table, e.Chunk, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *WriteError) Unwrap() error { return e.Err }

// PairError は1つの（クライアント×エンドポイント）ペアの処理失敗を表す。
// オーケストレーション境界で捕捉され、残りのペアの実行は妨げない。
type PairError struct {
	Client   string
	Endpoint string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *PairError) Error() string {
	return fmt.Sprintf("ペア処理エラー: client=%s endpoint=%s: %v", e.Client, e.Endpoint, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *PairError) Unwrap() error { return e.Err }
