// Package syncer はフェッチ・正規化・分類・書き込みの同期パイプラインを提供する。
package syncer

import "time"

// Result は1つの（クライアント×エンドポイント）ペアの同期結果。
type Result struct {
	Client   string `json:"client"`
	Endpoint string `json:"endpoint"`
	Table    string `json:"table"`

	Fetched        int `json:"fetched"`
	Inserted       int `json:"inserted"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	CoerceFailures int `json:"coerce_failures"`

	// Partial は転送エラーでフェッチが打ち切られ、部分結果で
	// 処理を継続したことを示す（警告扱い、失敗ではない）。
	Partial bool `json:"partial,omitempty"`

	// Err はペア処理の失敗。残りのペアの実行は妨げない。
	Err error `json:"-"`
}

// Failed はこのペアが失敗扱いかを返す。
func (r Result) Failed() bool { return r.Err != nil }

// RunReport は1回の同期実行全体の集約結果。
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Failures は失敗したペアの結果のみを返す。
func (r *RunReport) Failures() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// TotalFetched は全ペアの取得アイテム数の合計を返す。
func (r *RunReport) TotalFetched() int { return r.total(func(res Result) int { return res.Fetched }) }

// TotalInserted は全ペアの挿入行数の合計を返す。
func (r *RunReport) TotalInserted() int { return r.total(func(res Result) int { return res.Inserted }) }

// TotalUpdated は全ペアの更新行数の合計を返す。
func (r *RunReport) TotalUpdated() int { return r.total(func(res Result) int { return res.Updated }) }

// TotalSkipped は全ペアの除外アイテム数の合計を返す。
func (r *RunReport) TotalSkipped() int { return r.total(func(res Result) int { return res.Skipped }) }

func (r *RunReport) total(f func(Result) int) int {
	sum := 0
	for _, res := range r.Results {
		sum += f(res)
	}
	return sum
}
