package fetcher

import (
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Image 页面中的图片
type Image struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	IsLazy bool   `json:"isLazy"`
}

// Preprocessor 导入前整理抓取到的 HTML：
// 懒加载图片、相对地址、Cloudflare 邮箱保护
type Preprocessor struct {
	lazyAttributes []string
}

// NewPreprocessor 创建预处理器
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		lazyAttributes: []string{
			"data-src",
			"data-lazy-src",
			"data-original",
			"data-actualsrc",
			"data-hi-res-src",
			"data-lazy",
			"data-echo",
		},
	}
}

// Process 返回处理后的 body 内容和图片列表。base 为 nil 时不做地址绝对化
func (p *Preprocessor) Process(src string, base *url.URL) (string, []Image, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", nil, err
	}

	decodeCloudflareEmails(doc)

	var images []Image
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		lazy := false
		for _, attr := range p.lazyAttributes {
			if lazySrc, ok := s.Attr(attr); ok && lazySrc != "" {
				if strings.HasPrefix(lazySrc, "http") || strings.HasPrefix(lazySrc, "/") {
					s.SetAttr("src", lazySrc)
					lazy = true
					break
				}
			}
		}

		imgSrc, ok := s.Attr("src")
		if !ok || imgSrc == "" || strings.HasPrefix(imgSrc, "data:") {
			return
		}
		imgSrc = resolveURL(imgSrc, base)
		s.SetAttr("src", imgSrc)

		alt, _ := s.Attr("alt")
		images = append(images, Image{URL: imgSrc, Alt: alt, IsLazy: lazy})
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "#") {
			return
		}
		s.SetAttr("href", resolveURL(href, base))
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(out), images, nil
}

func resolveURL(raw string, base *url.URL) string {
	if base == nil {
		return raw
	}
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return base.ResolveReference(parsed).String()
}

const cfEmailPath = "/cdn-cgi/l/email-protection"

// decodeCloudflareEmails 还原 Cloudflare Email Protection 混淆的邮箱：
//   - 带 data-cfemail 的元素替换为邮箱文本
//   - href="/cdn-cgi/l/email-protection#xxxx" 改写为 mailto:
func decodeCloudflareEmails(doc *goquery.Document) {
	doc.Find("[data-cfemail]").Each(func(_ int, s *goquery.Selection) {
		encoded, _ := s.Attr("data-cfemail")
		if email := decodeCloudflareEmail(encoded); email != "" {
			s.ReplaceWithHtml(html.EscapeString(email))
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		idx := strings.Index(href, cfEmailPath+"#")
		if idx < 0 {
			return
		}
		if email := decodeCloudflareEmail(href[idx+len(cfEmailPath)+1:]); email != "" {
			s.SetAttr("href", "mailto:"+email)
		}
	})
}

// decodeCloudflareEmail 十六进制编码，第一个字节是 XOR 密钥
func decodeCloudflareEmail(encoded string) string {
	if len(encoded) < 4 || len(encoded)%2 != 0 {
		return ""
	}

	key, err := strconv.ParseUint(encoded[:2], 16, 8)
	if err != nil {
		return ""
	}

	var sb strings.Builder
	for i := 2; i < len(encoded); i += 2 {
		c, err := strconv.ParseUint(encoded[i:i+2], 16, 8)
		if err != nil {
			return ""
		}
		sb.WriteByte(byte(c ^ key))
	}
	return sb.String()
}
