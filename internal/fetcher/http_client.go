package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/newsflow/draft-import-service/internal/config"
)

const maxRedirects = 10

// StandardClient net/http 客户端，CycleTLS 不可用或失败时使用
type StandardClient struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewStandardClient 创建标准客户端。未开启 FetchAllowPrivate 时拨号前拒绝内网地址
func NewStandardClient(cfg *config.Config) *StandardClient {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !cfg.FetchAllowPrivate {
		dialer.Control = guardDial
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}

	return &StandardClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  int64(cfg.MaxHTMLBytes),
	}
}

// Fetch 抓取页面，headers 覆盖默认请求头。响应体超过 MaxHTMLBytes 时报错
func (c *StandardClient) Fetch(ctx context.Context, url string, headers map[string]string) *Result {
	start := time.Now()
	result := &Result{URL: url, Strategy: StrategyStandard}
	done := func(err error) *Result {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return done(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return done(err)
	}
	defer resp.Body.Close()

	result.FinalURL = resp.Request.URL.String()
	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		return done(&HTTPError{StatusCode: resp.StatusCode})
	}

	body, err := c.readBody(resp.Body)
	if err != nil {
		return done(err)
	}
	result.HTML = body
	return done(nil)
}

func (c *StandardClient) readBody(r io.Reader) (string, error) {
	if c.maxBytes <= 0 {
		b, err := io.ReadAll(r)
		return string(b), err
	}
	b, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(b)) > c.maxBytes {
		return "", fmt.Errorf("response body exceeds %d bytes", c.maxBytes)
	}
	return string(b), nil
}
