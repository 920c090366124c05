// Package fixture 内置的 HTML 探测样例和演示变体
package fixture

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/document"
)

// 预置样例名称
const (
	Safe    = "safe"
	Exploit = "exploit"
)

// DefaultVariant 默认变体
const DefaultVariant = "draft"

//go:embed fixtures.yaml
var catalogYAML []byte

// Fixture HTML 样例
type Fixture struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	HTML        string `yaml:"html" json:"html"`
}

// Variant 演示变体配置
type Variant struct {
	Name             string                `yaml:"name" json:"name"`
	Description      string                `yaml:"description" json:"description"`
	SanitizeOnImport bool                  `yaml:"sanitizeOnImport" json:"sanitizeOnImport"`
	MirrorExport     bool                  `yaml:"mirrorExport" json:"mirrorExport"`
	Decorators       []document.EntityType `yaml:"decorators" json:"decorators"`
}

// Catalog 样例和变体目录
type Catalog struct {
	Fixtures []Fixture `yaml:"fixtures"`
	Variants []Variant `yaml:"variants"`

	fixtures map[string]Fixture
	variants map[string]Variant
}

// Parse 解析 YAML 目录
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse fixture catalog: %w", err)
	}

	c.fixtures = make(map[string]Fixture, len(c.Fixtures))
	for _, f := range c.Fixtures {
		if f.Name == "" {
			return nil, fmt.Errorf("fixture without name")
		}
		// YAML 块文本末尾的换行不属于样例内容
		f.HTML = strings.TrimRight(f.HTML, "\n")
		c.fixtures[strings.ToLower(f.Name)] = f
	}

	c.variants = make(map[string]Variant, len(c.Variants))
	for _, v := range c.Variants {
		if v.Name == "" {
			return nil, fmt.Errorf("variant without name")
		}
		for _, t := range v.Decorators {
			if t != document.Link && t != document.Image {
				return nil, fmt.Errorf("variant %s: unknown decorator %q", v.Name, t)
			}
		}
		c.variants[strings.ToLower(v.Name)] = v
	}
	return &c, nil
}

// Default 内置目录
func Default() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Fixture 按名称查找样例
func (c *Catalog) Fixture(name string) (Fixture, error) {
	f, ok := c.fixtures[strings.ToLower(name)]
	if !ok {
		return Fixture{}, apperr.NotFound("fixture %q not found", name)
	}
	return f, nil
}

// FixtureNames 样例名称（排序后）
func (c *Catalog) FixtureNames() []string {
	names := make([]string, 0, len(c.fixtures))
	for name := range c.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variant 按名称查找变体，空名称返回默认变体
func (c *Catalog) Variant(name string) (Variant, error) {
	if name == "" {
		name = DefaultVariant
	}
	v, ok := c.variants[strings.ToLower(name)]
	if !ok {
		return Variant{}, apperr.Validation("unknown variant %q", name)
	}
	return v, nil
}

// VariantNames 变体名称（按目录顺序）
func (c *Catalog) VariantNames() []string {
	names := make([]string, len(c.Variants))
	for i, v := range c.Variants {
		names[i] = v.Name
	}
	return names
}
