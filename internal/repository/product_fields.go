package repository

// 値の型
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindUUID
)

// APIで公開する商品フィールド
type ProductField struct {
	Column     string
	Kind       FieldKind
	Filterable bool
	Sortable   bool
}

// 絞り込み・並び替えの許可リスト（キーはAPI上の名前）
var ProductFields = map[string]ProductField{
	"name":      {Column: "name", Kind: KindString, Filterable: true, Sortable: true},
	"unit":      {Column: "unit", Kind: KindString, Filterable: true, Sortable: true},
	"category":  {Column: "category", Kind: KindString, Filterable: true, Sortable: true},
	"brand":     {Column: "brand", Kind: KindString, Filterable: true, Sortable: true},
	"stock":     {Column: "stock", Kind: KindInt, Filterable: true, Sortable: true},
	"status":    {Column: "status", Kind: KindString, Filterable: true, Sortable: true},
	"user":      {Column: "user_id", Kind: KindUUID, Filterable: true},
	"createdAt": {Column: "created_at", Kind: KindString, Sortable: true},
}
