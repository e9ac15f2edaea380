// Package endpoint は同期対象エンドポイントの宣言的な定義を提供する。
// エンドポイントの追加はレジストリへの定義追加のみで完結し、
// 同期エンジン側の条件分岐を変更する必要はない。
package endpoint

import (
	"github.com/hitoshi/pcosync/internal/model"
	"github.com/hitoshi/pcosync/internal/schema"
)

// Flattener はフィールド抽出の前段で1回実行され、ネスト構造
// （住所オブジェクト、複数値のメール/電話配列）をフラットな
// 合成属性として属性マップにマージする。
type Flattener func(attrs map[string]any)

// Predicate はフェッチ後に各アイテムへ適用される受理判定。
// falseを返したアイテムは結果から除外される。
type Predicate func(item model.RawItem) bool

// Definition は1エンドポイントの同期定義。静的に1回ロードされる。
type Definition struct {
	// Name はエンドポイントの識別名。
	Name string
	// BaseURL はページネーション開始URL。
	BaseURL string
	// IDField は書き込み先テーブルの主キーフィールド名。
	IDField string
	// Table は書き込み先テーブル名。
	Table string
	// Schema は宣言型付きフィールドの順序付きリスト。IDFieldを先頭に含む。
	Schema []schema.Field
	// Flatten はネスト構造の平坦化処理。不要なエンドポイントではnil。
	Flatten Flattener
	// DateFilterKey は日付下限フィルタのクエリキー。空なら日付フィルタなし。
	DateFilterKey string
	// Accept はフェッチ後の受理判定。nilなら全アイテムを受理する。
	Accept Predicate
}

// registry は全エンドポイント定義。宣言順に同期される。
var registry = []Definition{
	{
		Name:          "donations",
		BaseURL:       "https://api.planningcenteronline.com/giving/v2/donations",
		IDField:       "donation_id",
		Table:         "pco_donations",
		DateFilterKey: "where[completed_at][gte]",
		Accept:        paymentSucceeded,
		Schema: []schema.Field{
			{Name: "donation_id", Type: schema.FieldString, Required: true},
			{Name: "amount", Type: schema.FieldFloat},
			{Name: "completed_at", Type: schema.FieldTimestamp},
			{Name: "payment_status", Type: schema.FieldString},
			{Name: "person_id", Type: schema.FieldString},
			{Name: "campus_id", Type: schema.FieldString},
		},
	},
	{
		Name:    "designations",
		BaseURL: "https://api.planningcenteronline.com/giving/v2/designations",
		IDField: "designation_id",
		Table:   "pco_designations",
		Schema: []schema.Field{
			{Name: "designation_id", Type: schema.FieldString, Required: true},
			{Name: "amount_cents", Type: schema.FieldInteger},
			{Name: "fund_id", Type: schema.FieldString},
		},
	},
	{
		Name:    "funds",
		BaseURL: "https://api.planningcenteronline.com/giving/v2/funds",
		IDField: "fund_id",
		Table:   "pco_funds",
		Schema: []schema.Field{
			{Name: "fund_id", Type: schema.FieldString, Required: true},
			{Name: "name", Type: schema.FieldString},
			{Name: "visibility", Type: schema.FieldString},
		},
	},
	{
		Name:    "campuses",
		BaseURL: "https://api.planningcenteronline.com/giving/v2/campuses",
		IDField: "campus_id",
		Table:   "pco_campuses",
		Schema: []schema.Field{
			{Name: "campus_id", Type: schema.FieldString, Required: true},
			{Name: "name", Type: schema.FieldString},
		},
	},
	{
		Name:    "donors",
		BaseURL: "https://api.planningcenteronline.com/people/v2/people",
		IDField: "donor_id",
		Table:   "pco_donors",
		Flatten: FlattenContact,
		Schema: []schema.Field{
			{Name: "donor_id", Type: schema.FieldString, Required: true},
			{Name: "first_name", Type: schema.FieldString},
			{Name: "last_name", Type: schema.FieldString},
			{Name: "email_address", Type: schema.FieldString},
			{Name: "phone_number", Type: schema.FieldString},
			{Name: "address_line1", Type: schema.FieldString},
			{Name: "address_city", Type: schema.FieldString},
			{Name: "address_state", Type: schema.FieldString},
			{Name: "address_zip", Type: schema.FieldString},
		},
	},
}

// All は全エンドポイント定義を宣言順で返す。
func All() []Definition {
	defs := make([]Definition, len(registry))
	copy(defs, registry)
	return defs
}

// Lookup は名前でエンドポイント定義を検索する。
func Lookup(name string) (Definition, bool) {
	for _, def := range registry {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// paymentSucceeded は決済完了済みのdonationのみを受理する。
// pending/failedの決済を集計対象から除外するための正確性フィルタで、
// サーバー側の日付フィルタの有無に関わらず常に適用される。
func paymentSucceeded(item model.RawItem) bool {
	status, _ := item.Attributes["payment_status"].(string)
	return status == "succeeded"
}
