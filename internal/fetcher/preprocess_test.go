package fetcher

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCloudflareEmail(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		expected string
	}{
		{"链接中的编码", "99e0f0fffcf7feb7ebecf8f7d9fef4f8f0f5b7faf6f4", "yifeng.ruan@gmail.com"},
		{"data-cfemail 中的编码", "83faeae5e6ede4adf1f6e2edc3e4eee2eaefade0ecee", "yifeng.ruan@gmail.com"},
		{"过短", "9", ""},
		{"奇数长度", "99e0f", ""},
		{"非十六进制", "99zz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, decodeCloudflareEmail(tt.encoded))
		})
	}
}

func TestProcess_CloudflareEmails(t *testing.T) {
	input := `<p>合作请<a href="/cdn-cgi/l/email-protection#99e0f0fffcf7feb7ebecf8f7d9fef4f8f0f5b7faf6f4">邮件联系</a>（<a href="/cdn-cgi/l/email-protection" class="__cf_email__" data-cfemail="83faeae5e6ede4adf1f6e2edc3e4eee2eaefade0ecee">[email&#160;protected]</a>）。</p>`

	out, _, err := NewPreprocessor().Process(input, nil)
	require.NoError(t, err)

	assert.NotContains(t, out, "cdn-cgi/l/email-protection")
	assert.NotContains(t, out, "data-cfemail")
	assert.Contains(t, out, `<a href="mailto:yifeng.ruan@gmail.com">邮件联系</a>`)
	assert.Contains(t, out, "（yifeng.ruan@gmail.com）")
}

func TestProcess_ImagesAndLinks(t *testing.T) {
	base, err := url.Parse("https://news.test/a/b.html")
	require.NoError(t, err)

	input := `<html><head><title>x</title></head><body>
<img data-src="/img/lazy.png" alt="lazy">
<img src="pic.png">
<img src="data:image/png;base64,AAAA">
<a href="../c.html">c</a><a href="#top">top</a><a href="mailto:a@b.test">mail</a>
</body></html>`

	out, images, err := NewPreprocessor().Process(input, base)
	require.NoError(t, err)

	assert.NotContains(t, out, "<title>")
	assert.Contains(t, out, `href="https://news.test/c.html"`)
	assert.Contains(t, out, `href="#top"`)
	assert.Contains(t, out, `href="mailto:a@b.test"`)

	require.Len(t, images, 2)
	assert.Equal(t, Image{URL: "https://news.test/img/lazy.png", Alt: "lazy", IsLazy: true}, images[0])
	assert.Equal(t, Image{URL: "https://news.test/a/pic.png"}, images[1])
}
