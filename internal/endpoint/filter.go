package endpoint

import (
	"net/url"
	"time"
)

// Filter はフェッチリクエストのクエリパラメータに適用される
// 明示的なフィルタ値。nilのmapや暗黙のデフォルトの代わりに使用する。
type Filter interface {
	// Apply はフィルタをクエリパラメータにマージする。
	Apply(q url.Values)
}

// NoFilter はフィルタなしを表す。
type NoFilter struct{}

// Apply は何も行わない。
func (NoFilter) Apply(url.Values) {}

// DateRangeFilter は指定日時以降のレコードに限定する日付下限フィルタ。
type DateRangeFilter struct {
	// Key はサーバー側フィルタのクエリキー（例: "where[completed_at][gte]"）。
	Key string
	// Since は下限日時。日付部分のみがクエリに使用される。
	Since time.Time
}

// Apply は日付下限をクエリパラメータに設定する。
func (f DateRangeFilter) Apply(q url.Values) {
	q.Set(f.Key, f.Since.Format("2006-01-02"))
}

// ParamFilter は任意のクエリパラメータを1つ設定するフィルタ。
// デフォルトのページサイズの上書きにも使用できる。
type ParamFilter struct {
	Key   string
	Value string
}

// Apply はパラメータをクエリに設定する。
func (f ParamFilter) Apply(q url.Values) {
	q.Set(f.Key, f.Value)
}
