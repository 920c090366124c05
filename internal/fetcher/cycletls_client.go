package fetcher

import (
	"context"
	"time"

	cycletls "github.com/Danny-Dasilva/CycleTLS/cycletls"

	"github.com/newsflow/draft-import-service/internal/config"
)

// CycleTLSClient 使用 CycleTLS 的客户端（TLS 指纹伪造）
type CycleTLSClient struct {
	client       cycletls.CycleTLS
	userAgent    string
	ja3          string
	timeout      int
	allowPrivate bool // 为 false 时请求前后都检查目标地址
}

// ChromeJA3 Chrome JA3 指纹
const ChromeJA3 = "771,4865-4866-4867-49195-49199-49196-49200-52393-52392-49171-49172-156-157-47-53,0-23-65281-10-11-35-16-5-13-18-51-45-43-27-17513,29-23-24,0"

var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	"Connection":      "keep-alive",
	"Cache-Control":   "no-cache",
}

// NewCycleTLSClient 创建 CycleTLS 客户端
func NewCycleTLSClient(cfg *config.Config) *CycleTLSClient {
	return &CycleTLSClient{
		client:       cycletls.Init(),
		userAgent:    cfg.UserAgent,
		ja3:          ChromeJA3,
		timeout:      int(cfg.RequestTimeout.Seconds()),
		allowPrivate: cfg.FetchAllowPrivate,
	}
}

// Fetch 模拟 Chrome TLS 指纹抓取，headers 覆盖默认请求头
func (c *CycleTLSClient) Fetch(ctx context.Context, url string, headers map[string]string) *Result {
	start := time.Now()
	result := &Result{URL: url, Strategy: StrategyCycleTLS}

	// CycleTLS 不接受 context，只能在发起前检查
	if err := ctx.Err(); err != nil {
		result.Error = err
		return result
	}
	if !c.allowPrivate {
		if err := checkHost(ctx, url); err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}
	}

	merged := make(map[string]string, len(defaultHeaders)+len(headers))
	for k, v := range defaultHeaders {
		merged[k] = v
	}
	for k, v := range headers {
		merged[k] = v
	}

	resp, err := c.client.Do(url, cycletls.Options{
		Ja3:       c.ja3,
		UserAgent: c.userAgent,
		Headers:   merged,
		Timeout:   c.timeout,
	}, "GET")
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	result.FinalURL = resp.FinalUrl
	if result.FinalURL == "" {
		result.FinalURL = url
	}
	// 重定向无法在拨号时拦截，落到内网地址的结果整个丢弃
	if !c.allowPrivate && result.FinalURL != url {
		if err := checkHost(ctx, result.FinalURL); err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}
	}
	result.StatusCode = resp.Status
	result.ContentType = resp.Headers["Content-Type"]

	if resp.Status != 200 {
		result.Error = &HTTPError{StatusCode: resp.Status}
		result.Duration = time.Since(start)
		return result
	}

	result.HTML = resp.Body
	result.Duration = time.Since(start)
	return result
}

// Close 关闭客户端
func (c *CycleTLSClient) Close() {
	c.client.Close()
}
