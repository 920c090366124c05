// Package fetcher 抓取远程页面作为导入源
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/newsflow/draft-import-service/internal/config"
)

// 抓取策略
const (
	StrategyAuto     = "auto"
	StrategyCycleTLS = "cycletls"
	StrategyStandard = "standard"
)

// Request 抓取请求
type Request struct {
	URL      string
	Strategy string
	Referer  string
	Headers  map[string]string
}

// Result 抓取结果
type Result struct {
	URL         string
	FinalURL    string
	HTML        string
	StatusCode  int
	ContentType string
	Strategy    string
	Duration    time.Duration
	Error       error
}

// HTTPError 非 200 响应
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// Fetcher 统一抓取器（整合多种策略），出站请求受速率限制
type Fetcher struct {
	cycleTLS   *CycleTLSClient
	standard   *StandardClient
	preprocess *Preprocessor
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New 创建抓取器
func New(cfg *config.Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := 1
	if cfg.FetchRatePerSec > 0 {
		limit = rate.Limit(cfg.FetchRatePerSec)
		burst = cfg.FetchRatePerSec
	}

	f := &Fetcher{
		standard:   NewStandardClient(cfg),
		preprocess: NewPreprocessor(),
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
	if cfg.EnableCycleTLS {
		f.cycleTLS = NewCycleTLSClient(cfg)
	}
	return f
}

// CycleTLSEnabled 是否启用了 CycleTLS
func (f *Fetcher) CycleTLSEnabled() bool {
	return f.cycleTLS != nil
}

// Fetch 按策略抓取。auto 优先 CycleTLS，失败回退到标准客户端
func (f *Fetcher) Fetch(ctx context.Context, req Request) *Result {
	if err := f.limiter.Wait(ctx); err != nil {
		return &Result{URL: req.URL, Strategy: req.Strategy, Error: err}
	}

	headers := make(map[string]string, len(req.Headers)+1)
	if req.Referer != "" {
		headers["Referer"] = req.Referer
	}
	for k, v := range req.Headers {
		headers[k] = v
	}

	var result *Result
	switch req.Strategy {
	case StrategyStandard:
		result = f.standard.Fetch(ctx, req.URL, headers)
	case StrategyCycleTLS:
		if f.cycleTLS != nil {
			result = f.cycleTLS.Fetch(ctx, req.URL, headers)
		} else {
			result = f.standard.Fetch(ctx, req.URL, headers)
		}
	default:
		if f.cycleTLS != nil {
			result = f.cycleTLS.Fetch(ctx, req.URL, headers)
			if result.Error == nil && result.HTML != "" {
				break
			}
			f.logger.Debug("cycletls fetch failed, falling back", "url", req.URL, "error", result.Error)
		}
		result = f.standard.Fetch(ctx, req.URL, headers)
	}

	f.logger.Info("fetched",
		"url", req.URL,
		"strategy", result.Strategy,
		"status", result.StatusCode,
		"duration_ms", result.Duration.Milliseconds(),
		"error", result.Error,
	)
	return result
}

// Close 关闭抓取器
func (f *Fetcher) Close() {
	if f.cycleTLS != nil {
		f.cycleTLS.Close()
	}
}
