package sanitizer

import (
	"strings"

	"github.com/newsflow/draft-import-service/internal/apperr"
)

// 预置策略名称
const (
	PolicyRich  = "rich"
	PolicyPlain = "plain"
)

// Policy 允许列表配置：不在列表中的标签和属性一律移除
type Policy struct {
	Name              string   `json:"name" yaml:"name"`
	AllowedTags       []string `json:"allowedTags" yaml:"allowedTags"`
	AllowedAttributes []string `json:"allowedAttributes" yaml:"allowedAttributes"`
}

// RichPolicy 富文本策略（段落、列表、链接、标题）
func RichPolicy() Policy {
	return Policy{
		Name:              PolicyRich,
		AllowedTags:       []string{"p", "a", "ol", "ul", "li", "br", "h1", "h2", "h3"},
		AllowedAttributes: []string{"href"},
	}
}

// PlainTextPolicy 纯文本策略（只保留文本节点）
func PlainTextPolicy() Policy {
	return Policy{Name: PolicyPlain}
}

// 无论策略如何配置都不允许出现的标签
var forbiddenTags = map[string]struct{}{
	"script": {}, "style": {}, "iframe": {}, "frame": {}, "frameset": {},
	"object": {}, "embed": {}, "applet": {}, "svg": {}, "math": {},
	"template": {}, "base": {}, "meta": {}, "link": {}, "noscript": {},
	"form": {}, "input": {}, "button": {}, "textarea": {},
}

// 无论策略如何配置都不允许出现的属性（on* 事件属性单独判断）
var forbiddenAttrs = map[string]struct{}{
	"style": {}, "srcdoc": {}, "formaction": {}, "action": {},
	"xlink:href": {}, "xmlns": {}, "srcset": {},
}

// URL 属性只挂在 bluemonday 会校验 URL 的元素上
var urlAttrElements = map[string][]string{
	"href": {"a", "area"},
	"src":  {"img", "audio", "video", "track"},
	"cite": {"blockquote", "q", "del", "ins"},
}

// normalize 小写、去空白、去重
func normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "#text" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Validate 检查策略是否试图放行可执行的标签或属性
func (p Policy) Validate() error {
	for _, tag := range normalize(p.AllowedTags) {
		if _, bad := forbiddenTags[tag]; bad {
			return apperr.Validation("policy %q: tag <%s> cannot be allowed", p.Name, tag)
		}
	}
	for _, attr := range normalize(p.AllowedAttributes) {
		if strings.HasPrefix(attr, "on") {
			return apperr.Validation("policy %q: event handler attribute %q cannot be allowed", p.Name, attr)
		}
		if _, bad := forbiddenAttrs[attr]; bad {
			return apperr.Validation("policy %q: attribute %q cannot be allowed", p.Name, attr)
		}
	}
	return nil
}
