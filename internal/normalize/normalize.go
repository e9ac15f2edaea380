// Package normalize はAPIアイテムの正規化（平坦化・抽出・型強制）を提供する。
package normalize

import (
	"github.com/hitoshi/pcosync/internal/endpoint"
	"github.com/hitoshi/pcosync/internal/model"
	"github.com/hitoshi/pcosync/internal/schema"
	"github.com/hitoshi/pcosync/internal/security"
)

// Normalizer はRawItemをエンドポイントのフィールドスキーマに沿った
// フラットな行へ正規化する。
type Normalizer struct {
	sanitizer  security.FieldSanitizerService
	nullString schema.NullStringPolicy
}

// NewNormalizer はNormalizerの新しいインスタンスを生成する。
func NewNormalizer(sanitizer security.FieldSanitizerService, nullString schema.NullStringPolicy) *Normalizer {
	return &Normalizer{
		sanitizer:  sanitizer,
		nullString: nullString,
	}
}

// NormalizeItem は1アイテムを正規化済みの行へ変換する。
// スキーマの全フィールド名が行に含まれることを保証し、
// IDが解決できないアイテムは出力から除外する（okがfalse）。
// 戻り値のfailuresは吸収された型強制失敗の件数。
func (n *Normalizer) NormalizeItem(item model.RawItem, def endpoint.Definition) (row model.Row, failures int, ok bool) {
	id := item.ID.String()
	if id == "" {
		return nil, 0, false
	}

	// 平坦化は元の属性マップを変更しないようコピーに対して行う
	attrs := make(map[string]any, len(item.Attributes)+8)
	for k, v := range item.Attributes {
		attrs[k] = v
	}
	if def.Flatten != nil {
		def.Flatten(attrs)
	}

	row = make(model.Row, len(def.Schema))
	row[def.IDField] = id

	for _, field := range def.Schema {
		if field.Name == def.IDField {
			continue
		}

		raw := extractField(attrs, item.Relationships, field.Name)

		// 自由記述のSTRING値はHTMLを除去してから格納する
		if field.Type == schema.FieldString {
			if s, isString := raw.(string); isString {
				raw = n.sanitizer.Sanitize(s)
			}
		}

		coerced, coerceOK := schema.Coerce(raw, field.Type, n.nullString)
		if !coerceOK {
			failures++
		}
		row[field.Name] = coerced
	}

	return row, failures, true
}

// ExtractField は1アイテムからフィールド値を解決する。
// 解決順: 属性の直接参照 → リレーションシップIDへのフォールバック → null。
// 平坦化はNormalizeItem側で事前に行われるため、ここでは行わない。
func ExtractField(item model.RawItem, name string) any {
	return extractField(item.Attributes, item.Relationships, name)
}

// extractField は属性マップとリレーションシップからフィールド値を解決する。
// 最初にマッチした値が優先される。
func extractField(attrs map[string]any, rels map[string]model.Relationship, name string) any {
	if v, present := attrs[name]; present && v != nil {
		return v
	}
	if rel, present := rels[name]; present {
		// to-oneリレーションシップのリンク先が存在しない場合、dataはnull
		if rel.Data == nil {
			return nil
		}
		return rel.Data.ID.String()
	}
	return nil
}
