package document

import (
	"html"
	"sort"
	"strings"
)

var blockTags = map[BlockType]string{
	Unstyled:    "p",
	HeaderOne:   "h1",
	HeaderTwo:   "h2",
	HeaderThree: "h3",
	HeaderFour:  "h4",
	HeaderFive:  "h5",
	HeaderSix:   "h6",
	Blockquote:  "blockquote",
	CodeBlock:   "pre",
	Atomic:      "figure",
}

var styleTagNames = map[InlineStyle]string{
	Bold:          "strong",
	Italic:        "em",
	Underline:     "u",
	Strikethrough: "del",
	Code:          "code",
}

// Exporter 把文档序列化为 HTML，所有文本都经过转义
type Exporter struct {
	decorators Decorators
}

// NewExporter 创建导出器
func NewExporter(decorators Decorators) *Exporter {
	if decorators == nil {
		decorators = Decorators{}
	}
	return &Exporter{decorators: decorators}
}

type openList struct {
	tag     string
	hasItem bool
}

// Export 导出 HTML。列表项按深度嵌套为 ul / ol
func (e *Exporter) Export(doc *Document) string {
	var sb strings.Builder
	var lists []openList

	closeLists := func(keep int) {
		for len(lists) > keep {
			top := lists[len(lists)-1]
			if top.hasItem {
				sb.WriteString("</li>")
			}
			sb.WriteString("</" + top.tag + ">")
			lists = lists[:len(lists)-1]
		}
		if keep == 0 {
			sb.WriteString("\n")
		}
	}

	for i := range doc.Blocks {
		block := &doc.Blocks[i]
		inline := e.renderInline(doc, block)

		if !block.Type.IsList() {
			if len(lists) > 0 {
				closeLists(0)
			}
			tag := blockTags[block.Type]
			if tag == "" {
				tag = "p"
			}
			if inline == "" && block.Type != CodeBlock {
				inline = "<br>"
			}
			sb.WriteString("<" + tag + ">" + inline + "</" + tag + ">\n")
			continue
		}

		tag := "ul"
		if block.Type == OrderedListItem {
			tag = "ol"
		}
		depth := block.Depth
		if depth < 0 {
			depth = 0
		}
		if depth > MaxDepth {
			depth = MaxDepth
		}

		if len(lists) > depth+1 {
			closeLists(depth + 1)
		}
		if len(lists) == depth+1 && lists[depth].tag != tag {
			closeLists(depth)
		}
		if len(lists) == depth+1 && lists[depth].hasItem {
			sb.WriteString("</li>")
		}
		for len(lists) < depth+1 {
			sb.WriteString("<" + tag + ">")
			lists = append(lists, openList{tag: tag})
		}
		sb.WriteString("<li>" + inline)
		lists[depth].hasItem = true
	}
	if len(lists) > 0 {
		closeLists(0)
	}

	return strings.TrimRight(sb.String(), "\n")
}

type decoration struct {
	Range
	decorator Decorator
}

func (e *Exporter) renderInline(doc *Document, block *Block) string {
	runes := []rune(block.Text)
	styles := make([]uint8, len(runes))
	for _, r := range block.InlineStyleRanges {
		bit := styleBits[r.Style]
		for i := r.Offset; i < r.Offset+r.Length && i < len(runes); i++ {
			if i >= 0 {
				styles[i] |= bit
			}
		}
	}

	var decos []decoration
	for _, t := range e.decorators.Types() {
		dec := e.decorators[t]
		if dec.Strategy == nil || dec.Component == nil {
			continue
		}
		for _, r := range dec.Strategy(doc, block) {
			if r.Start < 0 || r.End > len(runes) || r.Start >= r.End {
				continue
			}
			decos = append(decos, decoration{Range: r, decorator: dec})
		}
	}
	sort.SliceStable(decos, func(i, j int) bool { return decos[i].Start < decos[j].Start })

	pre := block.Type == CodeBlock
	var sb strings.Builder
	pos := 0
	for _, d := range decos {
		if d.Start < pos {
			// 区间重叠，保留先出现的
			continue
		}
		sb.WriteString(renderStyled(runes[pos:d.Start], styles[pos:d.Start], pre))
		children := renderStyled(runes[d.Start:d.End], styles[d.Start:d.End], pre)
		entity, _ := doc.Entity(d.EntityKey)
		sb.WriteString(d.decorator.Component(entity, children))
		pos = d.End
	}
	sb.WriteString(renderStyled(runes[pos:], styles[pos:], pre))
	return sb.String()
}

// renderStyled 按样式分段输出转义后的文本
func renderStyled(runes []rune, styles []uint8, pre bool) string {
	var sb strings.Builder
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && styles[i] == styles[start] {
			continue
		}
		text := html.EscapeString(string(runes[start:i]))
		if !pre {
			text = strings.ReplaceAll(text, "\n", "<br>")
		}
		mask := styles[start]
		for _, s := range styleOrder {
			if mask&styleBits[s] != 0 {
				sb.WriteString("<" + styleTagNames[s] + ">")
			}
		}
		sb.WriteString(text)
		for j := len(styleOrder) - 1; j >= 0; j-- {
			if mask&styleBits[styleOrder[j]] != 0 {
				sb.WriteString("</" + styleTagNames[styleOrder[j]] + ">")
			}
		}
		start = i
	}
	return sb.String()
}
