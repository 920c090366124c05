package document

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// 导入器自带的 URL 白名单。只作为最后一道防线，调用方仍需先净化
var (
	linkSchemes  = map[string]struct{}{"http": {}, "https": {}, "mailto": {}, "tel": {}}
	imageSchemes = map[string]struct{}{"http": {}, "https": {}}
)

// 内容直接丢弃的元素
var droppedElements = map[atom.Atom]struct{}{
	atom.Script: {}, atom.Style: {}, atom.Noscript: {}, atom.Template: {},
	atom.Head: {}, atom.Title: {}, atom.Iframe: {}, atom.Object: {},
	atom.Textarea: {}, atom.Select: {},
}

var headerTypes = map[atom.Atom]BlockType{
	atom.H1: HeaderOne, atom.H2: HeaderTwo, atom.H3: HeaderThree,
	atom.H4: HeaderFour, atom.H5: HeaderFive, atom.H6: HeaderSix,
}

// 视为 unstyled 块的容器元素（在列表项 / 引用中继承外层类型）
var unstyledAliases = map[atom.Atom]struct{}{
	atom.P: {}, atom.Div: {}, atom.Section: {}, atom.Article: {}, atom.Header: {},
	atom.Footer: {}, atom.Main: {}, atom.Aside: {}, atom.Nav: {}, atom.Address: {},
	atom.Figcaption: {}, atom.Dt: {}, atom.Dd: {},
}

var styleTags = map[atom.Atom]InlineStyle{
	atom.B: Bold, atom.Strong: Bold,
	atom.I: Italic, atom.Em: Italic, atom.Cite: Italic,
	atom.U: Underline, atom.Ins: Underline,
	atom.S: Strikethrough, atom.Strike: Strikethrough, atom.Del: Strikethrough,
	atom.Code: Code, atom.Kbd: Code, atom.Samp: Code, atom.Tt: Code,
}

var styleBits = map[InlineStyle]uint8{
	Bold: 1 << 0, Italic: 1 << 1, Underline: 1 << 2, Strikethrough: 1 << 3, Code: 1 << 4,
}

// Importer 把 HTML 转换为文档状态
type Importer struct{}

// NewImporter 创建导入器
func NewImporter() *Importer {
	return &Importer{}
}

// Import 解析 HTML 并生成文档。未闭合的标签由解析器自动补全，
// 未知元素只保留文本，标签名大小写不敏感。
func (im *Importer) Import(src string) (*Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, err
	}

	b := &builder{doc: &Document{EntityMap: map[int]Entity{}}}
	root := walkCtx{blockType: Unstyled, depth: -1, entity: -1}
	for _, n := range nodes {
		b.walk(n, root)
	}
	b.flush(false)

	if len(b.doc.Blocks) == 0 {
		b.doc.Blocks = []Block{{Key: b.keys.next(), Type: Unstyled, InlineStyleRanges: []InlineStyleRange{}, EntityRanges: []EntityRange{}}}
	}
	return b.doc, nil
}

type walkCtx struct {
	blockType BlockType
	listType  BlockType
	depth     int
	style     uint8
	entity    int
	pre       bool
}

type charMeta struct {
	style  uint8
	entity int
}

type pendingBlock struct {
	typ      BlockType
	depth    int
	explicit bool
	text     []rune
	meta     []charMeta
}

type builder struct {
	doc     *Document
	keys    keyGen
	current *pendingBlock
	nextKey int
}

func (b *builder) walk(n *html.Node, c walkCtx) {
	switch n.Type {
	case html.TextNode:
		b.text(n.Data, c)
		return
	case html.ElementNode:
	default:
		return
	}

	if _, drop := droppedElements[n.DataAtom]; drop {
		return
	}

	switch {
	case n.DataAtom == atom.Br:
		b.appendRune('\n', c)
		return

	case n.DataAtom == atom.Img:
		b.image(n, c)
		return

	case n.DataAtom == atom.A:
		if href, ok := safeURL(attr(n, "href"), linkSchemes); ok {
			data := map[string]string{"url": href}
			if title := strings.TrimSpace(attr(n, "title")); title != "" {
				data["title"] = title
			}
			c.entity = b.addEntity(Entity{Type: Link, Mutability: Mutable, Data: data})
		}
		b.children(n, c)
		return

	case n.DataAtom == atom.Ul || n.DataAtom == atom.Ol:
		c.listType = UnorderedListItem
		if n.DataAtom == atom.Ol {
			c.listType = OrderedListItem
		}
		c.depth++
		b.children(n, c)
		return

	case n.DataAtom == atom.Li:
		typ := c.listType
		if typ == "" {
			typ = UnorderedListItem
		}
		depth := c.depth
		if depth < 0 {
			depth = 0
		}
		if depth > MaxDepth {
			depth = MaxDepth
		}
		c.blockType = typ
		b.block(n, c, typ, depth)
		return

	case n.DataAtom == atom.Blockquote:
		c.blockType = Blockquote
		b.block(n, c, Blockquote, 0)
		return

	case n.DataAtom == atom.Pre:
		c.blockType = CodeBlock
		c.pre = true
		b.block(n, c, CodeBlock, 0)
		return

	case n.DataAtom == atom.Figure:
		c.blockType = Atomic
		b.block(n, c, Atomic, 0)
		return
	}

	if typ, ok := headerTypes[n.DataAtom]; ok {
		c.blockType = typ
		b.block(n, c, typ, 0)
		return
	}

	if _, ok := unstyledAliases[n.DataAtom]; ok {
		depth := 0
		if c.blockType.IsList() {
			depth = b.currentDepth(c)
		}
		b.block(n, c, c.blockType, depth)
		return
	}

	if style, ok := styleTags[n.DataAtom]; ok && !(style == Code && c.pre) {
		c.style |= styleBits[style]
	}
	b.children(n, c)
}

func (b *builder) children(n *html.Node, c walkCtx) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.walk(child, c)
	}
}

func (b *builder) currentDepth(c walkCtx) int {
	if c.depth < 0 {
		return 0
	}
	if c.depth > MaxDepth {
		return MaxDepth
	}
	return c.depth
}

// block 开始一个显式块，处理完子节点后结束它
func (b *builder) block(n *html.Node, c walkCtx, typ BlockType, depth int) {
	b.flush(false)
	b.current = &pendingBlock{typ: typ, depth: depth, explicit: true}
	b.children(n, c)
	b.flush(true)
}

func (b *builder) text(data string, c walkCtx) {
	if c.pre {
		data = strings.ReplaceAll(data, "\r\n", "\n")
		for _, r := range data {
			b.appendRune(r, c)
		}
		return
	}

	space := false
	for _, r := range data {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.appendRune(' ', c)
			space = false
		}
		b.appendRune(r, c)
	}
	if space {
		b.appendRune(' ', c)
	}
}

func (b *builder) appendRune(r rune, c walkCtx) {
	if r == ' ' && !c.pre {
		// 块首和换行 / 空格之后的空白不保留
		if b.current == nil || len(b.current.text) == 0 {
			return
		}
		if last := b.current.text[len(b.current.text)-1]; last == ' ' || last == '\n' {
			return
		}
	}
	if r == '\n' && !c.pre && b.current != nil {
		if n := len(b.current.text); n > 0 && b.current.text[n-1] == ' ' {
			b.current.text = b.current.text[:n-1]
			b.current.meta = b.current.meta[:n-1]
		}
	}
	if b.current == nil {
		depth := 0
		if c.blockType.IsList() {
			depth = b.currentDepth(c)
		}
		b.current = &pendingBlock{typ: c.blockType, depth: depth}
	}
	b.current.text = append(b.current.text, r)
	b.current.meta = append(b.current.meta, charMeta{style: c.style, entity: c.entity})
}

func (b *builder) image(n *html.Node, c walkCtx) {
	src, ok := safeURL(attr(n, "src"), imageSchemes)
	if !ok {
		return
	}
	data := map[string]string{"src": src}
	if alt := strings.TrimSpace(attr(n, "alt")); alt != "" {
		data["alt"] = alt
	}
	for _, dim := range []string{"width", "height"} {
		if v := strings.TrimSpace(attr(n, dim)); isDigits(v) {
			data[dim] = v
		}
	}
	c.entity = b.addEntity(Entity{Type: Image, Mutability: Immutable, Data: data})
	for _, r := range ImagePlaceholder {
		b.appendRune(r, c)
	}
}

func (b *builder) addEntity(e Entity) int {
	key := b.nextKey
	b.nextKey++
	b.doc.EntityMap[key] = e
	return key
}

// flush 输出当前块。force 为 true 时即使为空也输出显式块
func (b *builder) flush(force bool) {
	p := b.current
	b.current = nil
	if p == nil {
		return
	}

	// 去掉末尾空白
	end := len(p.text)
	for end > 0 && (p.text[end-1] == ' ' || p.text[end-1] == '\n' || p.text[end-1] == '\t') {
		end--
	}
	p.text = p.text[:end]
	p.meta = p.meta[:end]

	if len(p.text) == 0 && !(force && p.explicit) {
		return
	}

	b.doc.Blocks = append(b.doc.Blocks, Block{
		Key:               b.keys.next(),
		Type:              p.typ,
		Text:              string(p.text),
		Depth:             p.depth,
		InlineStyleRanges: styleRanges(p.meta),
		EntityRanges:      entityRanges(p.meta),
	})
}

func styleRanges(meta []charMeta) []InlineStyleRange {
	ranges := []InlineStyleRange{}
	for _, style := range styleOrder {
		bit := styleBits[style]
		start := -1
		for i := 0; i <= len(meta); i++ {
			on := i < len(meta) && meta[i].style&bit != 0
			if on && start < 0 {
				start = i
			}
			if !on && start >= 0 {
				ranges = append(ranges, InlineStyleRange{Offset: start, Length: i - start, Style: style})
				start = -1
			}
		}
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Offset < ranges[j].Offset })
	return ranges
}

func entityRanges(meta []charMeta) []EntityRange {
	ranges := []EntityRange{}
	start := -1
	for i := 0; i <= len(meta); i++ {
		cur := -1
		if i < len(meta) {
			cur = meta[i].entity
		}
		if start >= 0 && (i == len(meta) || cur != meta[start].entity) {
			ranges = append(ranges, EntityRange{Offset: start, Length: i - start, Key: meta[start].entity})
			start = -1
		}
		if cur >= 0 && start < 0 {
			start = i
		}
	}
	return ranges
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// safeURL 校验 URL：不允许内嵌空白或控制字符，协议必须在白名单内，相对地址放行
func safeURL(raw string, schemes map[string]struct{}) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", false
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" {
		// "//host" 形式也属于相对地址
		if strings.Contains(strings.SplitN(raw, "/", 2)[0], ":") {
			return "", false
		}
		return raw, true
	}
	if _, ok := schemes[strings.ToLower(u.Scheme)]; !ok {
		return "", false
	}
	return raw, true
}

// SafeLinkURL 链接地址是否在导入白名单内
func SafeLinkURL(raw string) bool {
	_, ok := safeURL(raw, linkSchemes)
	return ok
}

// SafeImageURL 图片地址是否在导入白名单内
func SafeImageURL(raw string) bool {
	_, ok := safeURL(raw, imageSchemes)
	return ok
}
