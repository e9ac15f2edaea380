package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexID は文字列または数値として到着するIDを文字列に正規化する。
// Planning Center APIはIDを文字列で返すが、取り込み元によっては
// 数値で到着するため、格納前に文字列へ揃えて比較可能性を保証する。
type FlexID string

// UnmarshalJSON はJSONの文字列・数値の両方をFlexIDとして受け付ける。
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("IDのデコードに失敗しました: %w", err)
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("IDのデコードに失敗しました: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// String はIDの文字列表現を返す。
func (f FlexID) String() string { return string(f) }

// RelationshipData はto-oneリレーションシップの参照先リソース。
type RelationshipData struct {
	Type string `json:"type"`
	ID   FlexID `json:"id"`
}

// Relationship はAPIレスポンスのrelationshipsエントリ。
// リンク先リソースが存在しない場合、Dataはnullになる。
type Relationship struct {
	Data *RelationshipData `json:"data"`
}

// RawItem は外部APIのデータ単位。
// フェッチャーが生成し、正規化処理が消費する一時的な値。
type RawItem struct {
	ID            FlexID                  `json:"id"`
	Attributes    map[string]any          `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships"`
}

// Row はエンドポイントのフィールドスキーマをキーとする正規化済みの1行。
// スキーマの全フィールド名が必ず含まれる（値はnull/デフォルトの場合あり）。
type Row map[string]any
