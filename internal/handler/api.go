package handler

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/document"
	"github.com/newsflow/draft-import-service/internal/fetcher"
	"github.com/newsflow/draft-import-service/internal/fixture"
	"github.com/newsflow/draft-import-service/internal/pipeline"
	"github.com/newsflow/draft-import-service/internal/sanitizer"
)

// SanitizeRequest 净化请求。给出 allowedTags / allowedAttributes 时使用临时策略
type SanitizeRequest struct {
	HTML              string   `json:"html"`
	Policy            string   `json:"policy,omitempty"`
	AllowedTags       []string `json:"allowedTags,omitempty" validate:"omitempty,dive,required"`
	AllowedAttributes []string `json:"allowedAttributes,omitempty" validate:"omitempty,dive,required"`
}

// SanitizeResponse 净化响应
type SanitizeResponse struct {
	Sanitized string `json:"sanitized"`
	Policy    string `json:"policy"`
	Duration  int64  `json:"duration"`
}

// ImportRequest 导入请求
type ImportRequest struct {
	HTML       string                `json:"html"`
	Sanitize   bool                  `json:"sanitize"`
	Policy     string                `json:"policy,omitempty"`
	Decorators []document.EntityType `json:"decorators,omitempty" validate:"omitempty,dive,oneof=LINK IMAGE"`
}

func (req ImportRequest) options() pipeline.Options {
	return pipeline.Options{Sanitize: req.Sanitize, Policy: req.Policy, Decorators: req.Decorators}
}

// PlainTextRequest 纯文本提取请求
type PlainTextRequest struct {
	HTML string `json:"html"`
}

// BatchRequest 批量导入请求
type BatchRequest struct {
	Items       []ImportRequest `json:"items" validate:"required,min=1,max=100,dive"`
	Concurrency int             `json:"concurrency,omitempty" validate:"gte=0,lte=10"`
}

// BatchItem 批量导入中的单项结果
type BatchItem struct {
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// BatchResponse 批量导入响应
type BatchResponse struct {
	Results  []BatchItem `json:"results"`
	Duration int64       `json:"duration"`
}

// FetchRequest 抓取请求，Import 为 true 时直接走导入流水线
type FetchRequest struct {
	URL         string            `json:"url" validate:"required,http_url"`
	Strategy    string            `json:"strategy,omitempty" validate:"omitempty,oneof=auto cycletls standard"`
	Referer     string            `json:"referer,omitempty" validate:"omitempty,url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Timeout     int               `json:"timeout,omitempty" validate:"gte=0"`
	Readability bool              `json:"readability"`
	Import      bool              `json:"import"`
	Sanitize    bool              `json:"sanitize"`
	Policy      string            `json:"policy,omitempty"`
}

// FetchResponse 抓取响应
type FetchResponse struct {
	Page   *fetcher.Page    `json:"page"`
	Result *pipeline.Result `json:"result,omitempty"`
}

// handleSanitize 净化
func (h *Handler) handleSanitize(w http.ResponseWriter, r *http.Request) {
	var req SanitizeRequest
	if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	release, err := h.acquire()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	start := time.Now()
	resp, err := h.sanitize(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp.Duration = time.Since(start).Milliseconds()
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sanitize(req SanitizeRequest) (*SanitizeResponse, error) {
	if len(req.AllowedTags) == 0 && len(req.AllowedAttributes) == 0 {
		out, err := h.pipeline.Sanitize(req.HTML, req.Policy)
		if err != nil {
			return nil, err
		}
		policy := req.Policy
		if policy == "" {
			policy = sanitizer.PolicyRich
		}
		return &SanitizeResponse{Sanitized: out, Policy: policy}, nil
	}

	if err := h.pipeline.CheckSize(req.HTML); err != nil {
		return nil, err
	}
	s, err := sanitizer.New(sanitizer.Policy{
		Name:              "custom",
		AllowedTags:       req.AllowedTags,
		AllowedAttributes: req.AllowedAttributes,
	})
	if err != nil {
		return nil, err
	}
	return &SanitizeResponse{Sanitized: s.Sanitize(req.HTML), Policy: s.Name()}, nil
}

// handleImport 导入
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	release, err := h.acquire()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	res, err := h.pipeline.Import(req.HTML, req.options())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// handlePlainText 纯文本提取
func (h *Handler) handlePlainText(w http.ResponseWriter, r *http.Request) {
	var req PlainTextRequest
	if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	release, err := h.acquire()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	res, err := h.pipeline.PlainText(req.HTML)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// handleBatch 批量导入，单项失败不影响其它项
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := h.decode(w, r, h.bodyLimit()*100, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	release, err := h.acquire()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	start := time.Now()
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	results := make([]BatchItem, len(req.Items))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(concurrency)
	for i, item := range req.Items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = BatchItem{Error: err.Error()}
				return nil
			}
			res, err := h.pipeline.Import(item.HTML, item.options())
			if err != nil {
				results[i] = BatchItem{Error: err.Error()}
				return nil
			}
			results[i] = BatchItem{Result: res}
			return nil
		})
	}
	_ = g.Wait()

	h.writeJSON(w, http.StatusOK, BatchResponse{
		Results:  results,
		Duration: time.Since(start).Milliseconds(),
	})
}

// handleFetch 抓取远程页面，可选直接导入
func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	release, err := h.acquire()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	page, err := h.fetchPage(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := FetchResponse{Page: page}
	if req.Import {
		res, err := h.pipeline.Import(page.HTML, pipeline.Options{Sanitize: req.Sanitize, Policy: req.Policy})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.Result = res
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) fetchPage(ctx context.Context, req FetchRequest) (*fetcher.Page, error) {
	if h.pages == nil {
		return nil, apperr.New(apperr.KindUnavailable, "fetching is disabled")
	}

	timeout := time.Duration(req.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = h.config.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return h.pages.Page(ctx, fetcher.Request{
		URL:      req.URL,
		Strategy: req.Strategy,
		Referer:  req.Referer,
		Headers:  req.Headers,
	}, req.Readability)
}

// handleListFixtures 列出内置样例
func (h *Handler) handleListFixtures(w http.ResponseWriter, r *http.Request) {
	fixtures := make([]fixture.Fixture, 0)
	for _, name := range h.catalog.FixtureNames() {
		f, err := h.catalog.Fixture(name)
		if err != nil {
			continue
		}
		fixtures = append(fixtures, f)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"fixtures": fixtures,
		"variants": h.catalog.Variants,
	})
}

// handleGetFixture 读取单个样例
func (h *Handler) handleGetFixture(w http.ResponseWriter, r *http.Request) {
	f, err := h.catalog.Fixture(r.PathValue("name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}
