// Package document 定义富文本文档状态（块列表 + 实体表），
// 以及 HTML 导入、装饰器和 HTML 导出。
//
// 数据结构与 Draft raw 格式一致：
//
//	{"blocks":[{"key":"a1b2c","type":"unstyled","text":"...","depth":0,
//	  "inlineStyleRanges":[...],"entityRanges":[...]}],
//	 "entityMap":{"0":{"type":"LINK","mutability":"MUTABLE","data":{"url":"..."}}}}
//
// 偏移量和长度均以 rune 计。
package document

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// BlockType 块类型
type BlockType string

const (
	Unstyled          BlockType = "unstyled"
	HeaderOne         BlockType = "header-one"
	HeaderTwo         BlockType = "header-two"
	HeaderThree       BlockType = "header-three"
	HeaderFour        BlockType = "header-four"
	HeaderFive        BlockType = "header-five"
	HeaderSix         BlockType = "header-six"
	UnorderedListItem BlockType = "unordered-list-item"
	OrderedListItem   BlockType = "ordered-list-item"
	Blockquote        BlockType = "blockquote"
	CodeBlock         BlockType = "code-block"
	Atomic            BlockType = "atomic"
)

var blockTypes = map[BlockType]struct{}{
	Unstyled: {}, HeaderOne: {}, HeaderTwo: {}, HeaderThree: {}, HeaderFour: {},
	HeaderFive: {}, HeaderSix: {}, UnorderedListItem: {}, OrderedListItem: {},
	Blockquote: {}, CodeBlock: {}, Atomic: {},
}

// IsList 是否为列表项
func (t BlockType) IsList() bool {
	return t == UnorderedListItem || t == OrderedListItem
}

// InlineStyle 行内样式
type InlineStyle string

const (
	Bold          InlineStyle = "BOLD"
	Italic        InlineStyle = "ITALIC"
	Underline     InlineStyle = "UNDERLINE"
	Code          InlineStyle = "CODE"
	Strikethrough InlineStyle = "STRIKETHROUGH"
)

// styleOrder 导出时样式标签的嵌套顺序
var styleOrder = []InlineStyle{Bold, Italic, Underline, Strikethrough, Code}

// EntityType 实体类型
type EntityType string

const (
	Link  EntityType = "LINK"
	Image EntityType = "IMAGE"
)

// Mutability 实体可变性
type Mutability string

const (
	Mutable   Mutability = "MUTABLE"
	Immutable Mutability = "IMMUTABLE"
)

// MaxDepth 列表最大嵌套深度
const MaxDepth = 4

// ImagePlaceholder 图片实体占用的文本
const ImagePlaceholder = "📷"

// InlineStyleRange 行内样式区间
type InlineStyleRange struct {
	Offset int         `json:"offset"`
	Length int         `json:"length"`
	Style  InlineStyle `json:"style"`
}

// EntityRange 实体区间
type EntityRange struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
	Key    int `json:"key"`
}

// Block 文本块
type Block struct {
	Key               string             `json:"key"`
	Type              BlockType          `json:"type"`
	Text              string             `json:"text"`
	Depth             int                `json:"depth"`
	InlineStyleRanges []InlineStyleRange `json:"inlineStyleRanges"`
	EntityRanges      []EntityRange      `json:"entityRanges"`
}

// Len 文本长度（rune）
func (b *Block) Len() int {
	return utf8.RuneCountInString(b.Text)
}

// Entity 实体（链接 / 图片）
type Entity struct {
	Type       EntityType        `json:"type"`
	Mutability Mutability        `json:"mutability"`
	Data       map[string]string `json:"data"`
}

// Document 富文本文档
type Document struct {
	Blocks    []Block        `json:"blocks"`
	EntityMap map[int]Entity `json:"entityMap"`
}

// Empty 创建只含一个空 unstyled 块的文档
func Empty() *Document {
	return &Document{
		Blocks:    []Block{{Key: newKey(), Type: Unstyled, InlineStyleRanges: []InlineStyleRange{}, EntityRanges: []EntityRange{}}},
		EntityMap: map[int]Entity{},
	}
}

// Entity 按 key 查找实体
func (d *Document) Entity(key int) (Entity, bool) {
	e, ok := d.EntityMap[key]
	return e, ok
}

// HasText 是否有非空文本
func (d *Document) HasText() bool {
	for _, b := range d.Blocks {
		if b.Text != "" {
			return true
		}
	}
	return false
}

// PlainText 各块文本以换行连接
func (d *Document) PlainText() string {
	texts := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		texts[i] = b.Text
	}
	return strings.Join(texts, "\n")
}

// Validate 检查块类型、深度、区间范围和实体引用
func (d *Document) Validate() error {
	if len(d.Blocks) == 0 {
		return fmt.Errorf("document has no blocks")
	}
	keys := make(map[string]struct{}, len(d.Blocks))
	for i, b := range d.Blocks {
		if b.Key == "" {
			return fmt.Errorf("block %d: empty key", i)
		}
		if _, dup := keys[b.Key]; dup {
			return fmt.Errorf("block %d: duplicate key %q", i, b.Key)
		}
		keys[b.Key] = struct{}{}

		if _, ok := blockTypes[b.Type]; !ok {
			return fmt.Errorf("block %s: unknown type %q", b.Key, b.Type)
		}
		if b.Depth < 0 || b.Depth > MaxDepth {
			return fmt.Errorf("block %s: depth %d out of range", b.Key, b.Depth)
		}

		n := b.Len()
		for _, r := range b.InlineStyleRanges {
			if r.Offset < 0 || r.Length <= 0 || r.Offset+r.Length > n {
				return fmt.Errorf("block %s: style range %d+%d outside text", b.Key, r.Offset, r.Length)
			}
		}
		for _, r := range b.EntityRanges {
			if r.Offset < 0 || r.Length <= 0 || r.Offset+r.Length > n {
				return fmt.Errorf("block %s: entity range %d+%d outside text", b.Key, r.Offset, r.Length)
			}
			if _, ok := d.EntityMap[r.Key]; !ok {
				return fmt.Errorf("block %s: unknown entity key %d", b.Key, r.Key)
			}
		}
	}
	for key, e := range d.EntityMap {
		if e.Type != Link && e.Type != Image {
			return fmt.Errorf("entity %d: unknown type %q", key, e.Type)
		}
	}
	return nil
}
