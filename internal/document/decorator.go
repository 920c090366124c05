package document

import (
	"html"
	"sort"
	"strings"
)

// Range 块内需要装饰的区间 [Start, End)，以 rune 计
type Range struct {
	Start     int
	End       int
	EntityKey int
}

// Strategy 在块内查找需要装饰的区间
type Strategy func(doc *Document, block *Block) []Range

// Component 渲染一个装饰区间，children 是区间内已转义的内容
type Component func(entity Entity, children string) string

// Decorator 装饰器 = 查找策略 + 渲染组件
type Decorator struct {
	Strategy  Strategy
	Component Component
}

// Decorators 按实体类型注册的装饰器
type Decorators map[EntityType]Decorator

// FindEntityRanges 返回查找指定类型实体区间的策略
func FindEntityRanges(t EntityType) Strategy {
	return func(doc *Document, block *Block) []Range {
		var ranges []Range
		for _, er := range block.EntityRanges {
			e, ok := doc.Entity(er.Key)
			if !ok || e.Type != t {
				continue
			}
			ranges = append(ranges, Range{Start: er.Offset, End: er.Offset + er.Length, EntityKey: er.Key})
		}
		return ranges
	}
}

// DefaultDecorators 链接和图片装饰器
func DefaultDecorators() Decorators {
	return Decorators{
		Link:  {Strategy: FindEntityRanges(Link), Component: LinkComponent},
		Image: {Strategy: FindEntityRanges(Image), Component: ImageComponent},
	}
}

// Only 只保留指定类型的装饰器
func (d Decorators) Only(types ...EntityType) Decorators {
	out := make(Decorators, len(types))
	for _, t := range types {
		if dec, ok := d[t]; ok {
			out[t] = dec
		}
	}
	return out
}

// Types 已注册的实体类型（排序后）
func (d Decorators) Types() []EntityType {
	types := make([]EntityType, 0, len(d))
	for t := range d {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// LinkComponent 渲染 <a href>，地址不在白名单内时只输出文本
func LinkComponent(e Entity, children string) string {
	u := e.Data["url"]
	if !SafeLinkURL(u) {
		return children
	}
	var sb strings.Builder
	sb.WriteString(`<a href="`)
	sb.WriteString(html.EscapeString(strings.TrimSpace(u)))
	sb.WriteString(`"`)
	if title := e.Data["title"]; title != "" {
		sb.WriteString(` title="`)
		sb.WriteString(html.EscapeString(title))
		sb.WriteString(`"`)
	}
	sb.WriteString(">")
	sb.WriteString(children)
	sb.WriteString("</a>")
	return sb.String()
}

// ImageComponent 渲染 <img>，占位文本被替换
func ImageComponent(e Entity, children string) string {
	src := e.Data["src"]
	if !SafeImageURL(src) {
		return children
	}
	var sb strings.Builder
	sb.WriteString(`<img src="`)
	sb.WriteString(html.EscapeString(strings.TrimSpace(src)))
	sb.WriteString(`" alt="`)
	sb.WriteString(html.EscapeString(e.Data["alt"]))
	sb.WriteString(`"`)
	for _, dim := range []string{"width", "height"} {
		if v := e.Data[dim]; isDigits(v) {
			sb.WriteString(" " + dim + `="` + v + `"`)
		}
	}
	sb.WriteString(">")
	return sb.String()
}
