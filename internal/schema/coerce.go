package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NullStringPolicy はSTRINGフィールドのnull値の扱いを定める。
// 全フィールドで一貫して適用されること（フィールドごとに変えない）。
type NullStringPolicy int

const (
	// NullStringEmpty はnullを空文字列に置き換える（デフォルト）。
	NullStringEmpty NullStringPolicy = iota
	// NullStringKeep はnullをnullのまま保持する。
	NullStringKeep
)

// Coerce は生の値を宣言型のスカラーへ変換する純粋関数。
// 変換に失敗した場合は型ごとのデフォルト値（INTEGER/FLOATは0、TIMESTAMPはnull）で
// 吸収し、第2戻り値でfalseを返す。失敗は呼び出し側で計数して観測可能にする。
func Coerce(value any, ft FieldType, policy NullStringPolicy) (any, bool) {
	switch ft {
	case FieldString:
		return coerceString(value, policy)
	case FieldInteger:
		return coerceInteger(value)
	case FieldFloat:
		return coerceFloat(value)
	case FieldTimestamp:
		return coerceTimestamp(value)
	case FieldBoolean:
		return coerceBoolean(value)
	default:
		return value, true
	}
}

// coerceString は非null値を文字列化する。nullはポリシーに従う。
func coerceString(value any, policy NullStringPolicy) (any, bool) {
	if value == nil {
		if policy == NullStringKeep {
			return nil, true
		}
		return "", true
	}
	return stringify(value), true
}

// coerceInteger は数値パースを試み、失敗およびnullは0に置き換える。
func coerceInteger(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return int64(0), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
		return int64(0), false
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(f), true
		}
		return int64(0), false
	default:
		return int64(0), false
	}
}

// coerceFloat は数値パースを試み、失敗およびnullは0.0に置き換える。
func coerceFloat(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return float64(0), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
		return float64(0), false
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
		return float64(0), false
	default:
		return float64(0), false
	}
}

// timestampLayout はISO-8601（明示オフセット、小数秒は任意）のレイアウト。
const timestampLayout = "2006-01-02T15:04:05.999999999-07:00"

// coerceTimestamp はISO-8601テキストをUTCタイムスタンプへ正規化する。
// "Z"サフィックスは明示的なUTCオフセットに置き換えてからパースし、
// 小数秒は切り捨てる。パース失敗およびnullはnullに置き換える。
func coerceTimestamp(value any) (any, bool) {
	if value == nil {
		return nil, true
	}
	s := strings.TrimSpace(stringify(value))
	if s == "" {
		return nil, false
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		// 日付のみ（"2006-01-02"）も受け付ける
		if d, derr := time.Parse("2006-01-02", s); derr == nil {
			return d.UTC(), true
		}
		return nil, false
	}
	return t.Truncate(time.Second).UTC(), true
}

// coerceBoolean は真偽値パースを試み、失敗およびnullはfalseに置き換える。
func coerceBoolean(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return false, true
	case bool:
		return v, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, true
		}
		return false, false
	default:
		return false, false
	}
}

// stringify はスカラー値の文字列表現を返す。
// JSON由来のfloat64は整数値のとき小数部なしで表現する。
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
