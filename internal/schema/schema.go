// Package schema はエンドポイントのフィールドスキーマと型強制を提供する。
package schema

// FieldType は書き込み先カラムの宣言型。
type FieldType string

const (
	// FieldString は文字列型。
	FieldString FieldType = "STRING"
	// FieldInteger は整数型。
	FieldInteger FieldType = "INTEGER"
	// FieldFloat は浮動小数点型。
	FieldFloat FieldType = "FLOAT"
	// FieldTimestamp はタイムスタンプ型（UTC、秒精度）。
	FieldTimestamp FieldType = "TIMESTAMP"
	// FieldBoolean は真偽値型。
	FieldBoolean FieldType = "BOOLEAN"
)

// Field はスキーマ内の1フィールドの宣言。
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Names はフィールド名を宣言順で返す。
func Names(fields []Field) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}
