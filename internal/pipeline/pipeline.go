// Package pipeline 串联 净化 → 导入 → 导出
package pipeline

import (
	"log/slog"
	"time"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/document"
	"github.com/newsflow/draft-import-service/internal/sanitizer"
)

// Options 单次导入的选项
type Options struct {
	Sanitize   bool
	Policy     string
	Decorators []document.EntityType
}

// Result 导入结果
type Result struct {
	Input     string             `json:"input"`
	Sanitized string             `json:"sanitized,omitempty"`
	Document  *document.Document `json:"document"`
	HTML      string             `json:"html"`
	PlainText string             `json:"plainText"`
	Sanitize  bool               `json:"sanitize"`
	Policy    string             `json:"policy,omitempty"`
	Duration  int64              `json:"duration"`
}

// Pipeline 无状态，可并发使用
type Pipeline struct {
	registry *sanitizer.Registry
	importer *document.Importer
	maxBytes int
	logger   *slog.Logger
}

// New 创建流水线。maxBytes <= 0 表示不限制输入大小
func New(registry *sanitizer.Registry, maxBytes int, logger *slog.Logger) *Pipeline {
	if registry == nil {
		registry = sanitizer.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry: registry,
		importer: document.NewImporter(),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Registry 净化器注册表
func (p *Pipeline) Registry() *sanitizer.Registry {
	return p.registry
}

// CheckSize 检查输入大小
func (p *Pipeline) CheckSize(html string) error {
	if p.maxBytes > 0 && len(html) > p.maxBytes {
		return apperr.Validation("html exceeds %d bytes", p.maxBytes)
	}
	return nil
}

// Sanitize 按指定策略净化，空策略名为 rich
func (p *Pipeline) Sanitize(html, policy string) (string, error) {
	if err := p.CheckSize(html); err != nil {
		return "", err
	}
	s, err := p.registry.Get(policy)
	if err != nil {
		return "", err
	}
	return s.Sanitize(html), nil
}

// Import 可选净化后导入，再用指定装饰器导出。
// 不净化时原始 HTML 直接交给导入器
func (p *Pipeline) Import(html string, opts Options) (*Result, error) {
	start := time.Now()
	if err := p.CheckSize(html); err != nil {
		return nil, err
	}

	res := &Result{Input: html, Sanitize: opts.Sanitize}
	src := html
	if opts.Sanitize {
		s, err := p.registry.Get(opts.Policy)
		if err != nil {
			return nil, err
		}
		src = s.Sanitize(html)
		res.Sanitized = src
		res.Policy = s.Name()
	}

	doc, err := p.importer.Import(src)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "import html", err)
	}

	res.Document = doc
	res.HTML = p.Export(doc, opts.Decorators)
	res.PlainText = doc.PlainText()
	res.Duration = time.Since(start).Milliseconds()

	p.logger.Debug("pipeline run",
		"sanitize", res.Sanitize,
		"policy", res.Policy,
		"input_bytes", len(html),
		"blocks", len(doc.Blocks),
		"entities", len(doc.EntityMap),
		"duration_ms", res.Duration,
	)
	return res, nil
}

// Export 按指定装饰器导出，types 为 nil 时使用全部默认装饰器
func (p *Pipeline) Export(doc *document.Document, types []document.EntityType) string {
	decorators := document.DefaultDecorators()
	if types != nil {
		decorators = decorators.Only(types...)
	}
	return document.NewExporter(decorators).Export(doc)
}

// PlainText 按纯文本策略净化后导入
func (p *Pipeline) PlainText(html string) (*Result, error) {
	return p.Import(html, Options{Sanitize: true, Policy: sanitizer.PolicyPlain})
}
