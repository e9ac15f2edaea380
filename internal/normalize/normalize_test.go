package normalize

import (
	"testing"
	"time"

	"github.com/hitoshi/pcosync/internal/endpoint"
	"github.com/hitoshi/pcosync/internal/model"
	"github.com/hitoshi/pcosync/internal/schema"
	"github.com/hitoshi/pcosync/internal/security"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(security.NewFieldSanitizer(), schema.NullStringEmpty)
}

func relTo(id string) model.Relationship {
	return model.Relationship{Data: &model.RelationshipData{ID: model.FlexID(id)}}
}

// 属性がnullでリレーションシップにIDがある場合にフォールバックすることを検証
func TestExtractField_RelationshipFallback(t *testing.T) {
	item := model.RawItem{
		ID:            "d1",
		Attributes:    map[string]any{"fund_id": nil},
		Relationships: map[string]model.Relationship{"fund_id": relTo("F9")},
	}

	if got := ExtractField(item, "fund_id"); got != "F9" {
		t.Errorf("ExtractField(fund_id) = %v, want %q", got, "F9")
	}
}

// リレーションシップのdataがnullの場合にnullへ解決することを検証
func TestExtractField_NullRelationshipData(t *testing.T) {
	item := model.RawItem{
		ID:            "d1",
		Attributes:    map[string]any{},
		Relationships: map[string]model.Relationship{"fund_id": {Data: nil}},
	}

	if got := ExtractField(item, "fund_id"); got != nil {
		t.Errorf("ExtractField(fund_id) = %v, want nil", got)
	}
}

// 属性値が存在する場合はリレーションシップより優先されることを検証
func TestExtractField_AttributeWins(t *testing.T) {
	item := model.RawItem{
		ID:            "d1",
		Attributes:    map[string]any{"fund_id": "F1"},
		Relationships: map[string]model.Relationship{"fund_id": relTo("F9")},
	}

	if got := ExtractField(item, "fund_id"); got != "F1" {
		t.Errorf("ExtractField(fund_id) = %v, want %q", got, "F1")
	}
}

// 未解決フィールドがnullになることを検証
func TestExtractField_Unresolved(t *testing.T) {
	item := model.RawItem{ID: "d1", Attributes: map[string]any{}}
	if got := ExtractField(item, "missing"); got != nil {
		t.Errorf("ExtractField(missing) = %v, want nil", got)
	}
}

// 正規化された行にスキーマの全フィールドが含まれることを検証
func TestNormalizeItem_AllSchemaFieldsPresent(t *testing.T) {
	def, _ := endpoint.Lookup("donations")
	n := newTestNormalizer()

	item := model.RawItem{
		ID: "123",
		Attributes: map[string]any{
			"amount":         float64(50.25),
			"completed_at":   "2024-01-05T10:00:00Z",
			"payment_status": "succeeded",
		},
		Relationships: map[string]model.Relationship{
			"person_id": relTo("P7"),
		},
	}

	row, failures, ok := n.NormalizeItem(item, def)
	if !ok {
		t.Fatal("expected item to normalize")
	}
	if failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}

	for _, field := range def.Schema {
		if _, present := row[field.Name]; !present {
			t.Errorf("row should contain field %q", field.Name)
		}
	}

	if row["donation_id"] != "123" {
		t.Errorf("donation_id = %v, want %q", row["donation_id"], "123")
	}
	if row["amount"] != float64(50.25) {
		t.Errorf("amount = %v, want 50.25", row["amount"])
	}
	if row["person_id"] != "P7" {
		t.Errorf("person_id = %v, want %q", row["person_id"], "P7")
	}
	// campus_idは未解決なのでSTRINGのnullポリシー（空文字列）が適用される
	if row["campus_id"] != "" {
		t.Errorf("campus_id = %v, want \"\"", row["campus_id"])
	}
	wantTS := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	if ts, isTime := row["completed_at"].(time.Time); !isTime || !ts.Equal(wantTS) {
		t.Errorf("completed_at = %v, want %v", row["completed_at"], wantTS)
	}
}

// IDが解決できないアイテムが出力から除外されることを検証
func TestNormalizeItem_MissingID_Excluded(t *testing.T) {
	def, _ := endpoint.Lookup("funds")
	n := newTestNormalizer()

	item := model.RawItem{
		ID:         "",
		Attributes: map[string]any{"name": "General"},
	}

	if _, _, ok := n.NormalizeItem(item, def); ok {
		t.Error("item without id should be excluded")
	}
}

// 型強制失敗が計数されることを検証
func TestNormalizeItem_CountsCoerceFailures(t *testing.T) {
	def, _ := endpoint.Lookup("donations")
	n := newTestNormalizer()

	item := model.RawItem{
		ID: "1",
		Attributes: map[string]any{
			"amount":       "not-a-number",
			"completed_at": "garbage",
		},
	}

	row, failures, ok := n.NormalizeItem(item, def)
	if !ok {
		t.Fatal("expected item to normalize")
	}
	// amount（FLOAT）とcompleted_at（TIMESTAMP）の両方がパース不能
	if failures != 2 {
		t.Errorf("failures = %d, want 2 (amount, completed_at)", failures)
	}
	if row["amount"] != float64(0) {
		t.Errorf("amount = %v, want 0.0", row["amount"])
	}
	if row["completed_at"] != nil {
		t.Errorf("completed_at = %v, want nil", row["completed_at"])
	}
}

// フィールド単位の型強制失敗がそれぞれ1件として計数されることを検証
func TestNormalizeItem_CoerceFailuresPerField(t *testing.T) {
	def, _ := endpoint.Lookup("donations")
	n := newTestNormalizer()

	tests := []struct {
		name  string
		attrs map[string]any
		want  int
	}{
		{"FLOATのみ失敗", map[string]any{"amount": "not-a-number"}, 1},
		{"TIMESTAMPのみ失敗", map[string]any{"completed_at": "garbage"}, 1},
		{"全フィールドがパース可能", map[string]any{
			"amount":       12.5,
			"completed_at": "2024-01-05T10:00:00Z",
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := model.RawItem{ID: "1", Attributes: tt.attrs}
			_, failures, ok := n.NormalizeItem(item, def)
			if !ok {
				t.Fatal("expected item to normalize")
			}
			if failures != tt.want {
				t.Errorf("failures = %d, want %d", failures, tt.want)
			}
		})
	}
}

// STRINGフィールドのHTMLが除去されることを検証
func TestNormalizeItem_SanitizesStringFields(t *testing.T) {
	def, _ := endpoint.Lookup("funds")
	n := newTestNormalizer()

	item := model.RawItem{
		ID:         "F1",
		Attributes: map[string]any{"name": "General <b>Fund</b>"},
	}

	row, _, ok := n.NormalizeItem(item, def)
	if !ok {
		t.Fatal("expected item to normalize")
	}
	if row["name"] != "General Fund" {
		t.Errorf("name = %v, want %q", row["name"], "General Fund")
	}
}

// donorの平坦化と抽出が連動することを検証
func TestNormalizeItem_DonorFlattening(t *testing.T) {
	def, _ := endpoint.Lookup("donors")
	n := newTestNormalizer()

	item := model.RawItem{
		ID: "P1",
		Attributes: map[string]any{
			"first_name": "Jane",
			"last_name":  "Doe",
			"emails": []any{
				map[string]any{"address": "a@x.com", "primary": false},
				map[string]any{"address": "b@x.com", "primary": true},
			},
			"addresses": []any{
				map[string]any{"street": "1 Main St", "city": "Springfield", "primary": true},
			},
		},
	}

	row, _, ok := n.NormalizeItem(item, def)
	if !ok {
		t.Fatal("expected item to normalize")
	}
	if row["email_address"] != "b@x.com" {
		t.Errorf("email_address = %v, want %q", row["email_address"], "b@x.com")
	}
	if row["address_line1"] != "1 Main St" {
		t.Errorf("address_line1 = %v, want %q", row["address_line1"], "1 Main St")
	}
	// primaryフラグのない電話番号配列は存在しないためnull→空文字列
	if row["phone_number"] != "" {
		t.Errorf("phone_number = %v, want \"\"", row["phone_number"])
	}
}

// 平坦化が元の属性マップを変更しないことを検証
func TestNormalizeItem_DoesNotMutateItem(t *testing.T) {
	def, _ := endpoint.Lookup("donors")
	n := newTestNormalizer()

	attrs := map[string]any{
		"first_name": "Jane",
		"emails": []any{
			map[string]any{"address": "a@x.com", "primary": true},
		},
	}
	item := model.RawItem{ID: "P1", Attributes: attrs}

	if _, _, ok := n.NormalizeItem(item, def); !ok {
		t.Fatal("expected item to normalize")
	}

	if _, present := attrs["email_address"]; present {
		t.Error("flattening must not mutate the source attribute map")
	}
}

// タイムスタンプ属性が完了日時として正規化されることの回帰テスト
func TestNormalizeItem_TimestampField(t *testing.T) {
	def := endpoint.Definition{
		Name:    "donations",
		IDField: "donation_id",
		Schema: []schema.Field{
			{Name: "donation_id", Type: schema.FieldString, Required: true},
			{Name: "completed_at", Type: schema.FieldTimestamp},
		},
	}
	n := newTestNormalizer()

	item := model.RawItem{
		ID:         "1",
		Attributes: map[string]any{"completed_at": "2024-01-05T10:00:00.123Z"},
	}

	row, failures, ok := n.NormalizeItem(item, def)
	if !ok || failures != 0 {
		t.Fatalf("ok=%v failures=%d", ok, failures)
	}
	ts, isTime := row["completed_at"].(time.Time)
	if !isTime {
		t.Fatalf("completed_at is %T, want time.Time", row["completed_at"])
	}
	want := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("completed_at = %v, want %v", ts, want)
	}
}
