package document

import "fmt"

// EditOp 编辑器发起的修改
type EditOp string

const (
	OpToggleBlockType   EditOp = "toggle-block-type"
	OpToggleInlineStyle EditOp = "toggle-inline-style"
	OpIndent            EditOp = "indent"
	OpOutdent           EditOp = "outdent"
)

// Edit 一次编辑。Offset/Length 以 rune 计，Length 为 0 表示整块
type Edit struct {
	Op        EditOp      `json:"op" validate:"required,oneof=toggle-block-type toggle-inline-style indent outdent"`
	BlockKey  string      `json:"blockKey" validate:"required"`
	BlockType BlockType   `json:"blockType,omitempty"`
	Style     InlineStyle `json:"style,omitempty"`
	Offset    int         `json:"offset,omitempty" validate:"gte=0"`
	Length    int         `json:"length,omitempty" validate:"gte=0"`
}

// Apply 在原文档上执行编辑
func (d *Document) Apply(e Edit) error {
	block := d.block(e.BlockKey)
	if block == nil {
		return fmt.Errorf("block %q not found", e.BlockKey)
	}

	switch e.Op {
	case OpToggleBlockType:
		return block.toggleType(e.BlockType)
	case OpToggleInlineStyle:
		return block.toggleStyle(e.Style, e.Offset, e.Length)
	case OpIndent:
		block.adjustDepth(1)
	case OpOutdent:
		block.adjustDepth(-1)
	default:
		return fmt.Errorf("unknown edit op %q", e.Op)
	}
	return nil
}

func (d *Document) block(key string) *Block {
	for i := range d.Blocks {
		if d.Blocks[i].Key == key {
			return &d.Blocks[i]
		}
	}
	return nil
}

// toggleType 已是该类型时恢复为 unstyled
func (b *Block) toggleType(t BlockType) error {
	if _, ok := blockTypes[t]; !ok {
		return fmt.Errorf("unknown block type %q", t)
	}
	if b.Type == t {
		t = Unstyled
	}
	b.Type = t
	if !t.IsList() {
		b.Depth = 0
	}
	return nil
}

// toggleStyle 区间内全部带该样式时移除，否则补齐
func (b *Block) toggleStyle(style InlineStyle, offset, length int) error {
	bit, ok := styleBits[style]
	if !ok {
		return fmt.Errorf("unknown inline style %q", style)
	}
	n := b.Len()
	if length == 0 {
		offset, length = 0, n
	}
	if offset < 0 || length < 0 || offset+length > n {
		return fmt.Errorf("range %d+%d outside block %s", offset, length, b.Key)
	}
	if length == 0 {
		return nil
	}

	meta := make([]charMeta, n)
	for i := range meta {
		meta[i].entity = -1
	}
	for _, r := range b.InlineStyleRanges {
		for i := r.Offset; i < r.Offset+r.Length && i < n; i++ {
			meta[i].style |= styleBits[r.Style]
		}
	}

	all := true
	for i := offset; i < offset+length; i++ {
		if meta[i].style&bit == 0 {
			all = false
			break
		}
	}
	for i := offset; i < offset+length; i++ {
		if all {
			meta[i].style &^= bit
		} else {
			meta[i].style |= bit
		}
	}
	b.InlineStyleRanges = styleRanges(meta)
	return nil
}

// adjustDepth 只对列表项生效，深度限制在 0..MaxDepth
func (b *Block) adjustDepth(delta int) {
	if !b.Type.IsList() {
		return
	}
	depth := b.Depth + delta
	if depth < 0 {
		depth = 0
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	b.Depth = depth
}
