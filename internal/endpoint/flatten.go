package endpoint

// FlattenContact はdonorアイテムの連絡先情報を合成フラット属性へ展開する。
// フィールド抽出の前に1回実行され、以下のキーを属性マップにマージする:
//
//	email_address   - primaryフラグ付きメールのaddress
//	phone_number    - primaryフラグ付き電話のnumber
//	address_line1, address_city, address_state, address_zip
//	                - primaryフラグ付き住所の各要素
//
// primaryフラグの付いた要素が存在しない場合、および配列が空の場合は
// nullのままとする。先頭要素へのフォールバックは行わない。
func FlattenContact(attrs map[string]any) {
	if email := primaryElement(attrs["emails"]); email != nil {
		attrs["email_address"] = email["address"]
	}
	if phone := primaryElement(attrs["phone_numbers"]); phone != nil {
		attrs["phone_number"] = phone["number"]
	}
	flattenAddress(attrs, primaryElement(attrs["addresses"]))
}

// addressKeyMap は住所オブジェクトのソースキーとフラット先キーの対応。
var addressKeyMap = map[string]string{
	"street": "address_line1",
	"city":   "address_city",
	"state":  "address_state",
	"zip":    "address_zip",
}

// flattenAddress は住所オブジェクトを固定のフラットキー集合へ展開する。
// 住所が存在しない場合は何もしない（フラットフィールドは全てnullになる）。
func flattenAddress(attrs map[string]any, address map[string]any) {
	if address == nil {
		return
	}
	for src, dst := range addressKeyMap {
		attrs[dst] = address[src]
	}
}

// primaryElement は複数値配列からprimary = trueの要素を選択する。
// primaryフラグ付き要素がない場合、配列でない場合、空の場合はnilを返す。
func primaryElement(value any) map[string]any {
	elems, ok := value.([]any)
	if !ok {
		return nil
	}
	for _, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if primary, _ := obj["primary"].(bool); primary {
			return obj
		}
	}
	return nil
}
