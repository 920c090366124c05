// Package sanitizer 在导入前按允许列表净化 HTML
package sanitizer

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/newsflow/draft-import-service/internal/apperr"
)

// Sanitizer HTML 净化器，可并发使用
type Sanitizer struct {
	name   string
	policy *bluemonday.Policy
}

// New 按允许列表编译净化器
func New(p Policy) (*Sanitizer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tags := normalize(p.AllowedTags)
	attrs := normalize(p.AllowedAttributes)

	policy := bluemonday.NewPolicy()
	if len(tags) > 0 {
		policy.AllowElements(tags...)
	}

	for _, attr := range attrs {
		elements := tags
		if allowed, isURL := urlAttrElements[attr]; isURL {
			elements = intersect(tags, allowed)
		}
		if len(elements) == 0 {
			continue
		}
		policy.AllowAttrs(attr).OnElements(elements...)
	}

	// URL 必须可解析，只允许 http / https / mailto 和相对地址
	policy.RequireParseableURLs(true)
	policy.AllowRelativeURLs(true)
	policy.AllowURLSchemes("http", "https", "mailto")

	return &Sanitizer{name: p.Name, policy: policy}, nil
}

// MustNew 同 New，策略非法时 panic（仅用于内置策略）
func MustNew(p Policy) *Sanitizer {
	s, err := New(p)
	if err != nil {
		panic(err)
	}
	return s
}

// Name 策略名称
func (s *Sanitizer) Name() string {
	return s.name
}

// Sanitize 净化 HTML
func (s *Sanitizer) Sanitize(html string) string {
	return s.policy.Sanitize(html)
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

// Registry 按名称管理已编译的净化器
type Registry struct {
	mu         sync.RWMutex
	sanitizers map[string]*Sanitizer
}

// NewRegistry 创建注册表，预置 rich 和 plain 两种策略
func NewRegistry() *Registry {
	r := &Registry{sanitizers: make(map[string]*Sanitizer)}
	r.Register(MustNew(RichPolicy()))
	r.Register(MustNew(PlainTextPolicy()))
	return r
}

// Register 注册净化器，同名覆盖
func (r *Registry) Register(s *Sanitizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sanitizers[strings.ToLower(s.name)] = s
}

// Get 按名称查找（大小写不敏感），空名称返回 rich
func (r *Registry) Get(name string) (*Sanitizer, error) {
	if name == "" {
		name = PolicyRich
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sanitizers[strings.ToLower(name)]
	if !ok {
		return nil, apperr.Validation("unknown sanitizer policy %q", name)
	}
	return s, nil
}

// Names 返回已注册的策略名称
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sanitizers))
	for name := range r.sanitizers {
		names = append(names, name)
	}
	return names
}

// 默认净化器实例
var defaultRich = MustNew(RichPolicy())

// SanitizeHTML 使用默认 rich 策略净化 HTML
func SanitizeHTML(html string) string {
	return defaultRich.Sanitize(html)
}
