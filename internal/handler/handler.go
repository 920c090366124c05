package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/config"
	"github.com/newsflow/draft-import-service/internal/fetcher"
	"github.com/newsflow/draft-import-service/internal/fixture"
	"github.com/newsflow/draft-import-service/internal/pipeline"
	"github.com/newsflow/draft-import-service/internal/workspace"
)

// PageFetcher 按 URL 取得页面
type PageFetcher interface {
	Page(ctx context.Context, req fetcher.Request, readable bool) (*fetcher.Page, error)
}

// Deps 处理器依赖。Pages 为 nil 时 /fetch 不可用
type Deps struct {
	Config     *config.Config
	Pipeline   *pipeline.Pipeline
	Workspaces *workspace.Service
	Catalog    *fixture.Catalog
	Pages      PageFetcher
	Logger     *slog.Logger
	StoreName  string
}

// Handler HTTP 处理器
type Handler struct {
	pipeline   *pipeline.Pipeline
	workspaces *workspace.Service
	catalog    *fixture.Catalog
	pages      PageFetcher
	validate   *validator.Validate
	semaphore  chan struct{}
	config     *config.Config
	logger     *slog.Logger
	storeName  string
	view       *viewRenderer
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status          string   `json:"status"`
	Concurrency     int      `json:"concurrency"`
	Available       int      `json:"available"`
	CycleTLSEnabled bool     `json:"cycleTlsEnabled"`
	Store           string   `json:"store"`
	Policies        []string `json:"policies"`
	Variants        []string `json:"variants"`
}

// New 创建处理器
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := d.Catalog
	if catalog == nil {
		catalog = fixture.Default()
	}
	maxConcurrent := d.Config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Handler{
		pipeline:   d.Pipeline,
		workspaces: d.Workspaces,
		catalog:    catalog,
		pages:      d.Pages,
		validate:   validator.New(),
		semaphore:  make(chan struct{}, maxConcurrent),
		config:     d.Config,
		logger:     logger,
		storeName:  d.StoreName,
		view:       newViewRenderer(),
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("POST /sanitize", h.handleSanitize)
	mux.HandleFunc("POST /import", h.handleImport)
	mux.HandleFunc("POST /plain-text", h.handlePlainText)
	mux.HandleFunc("POST /batch", h.handleBatch)
	mux.HandleFunc("POST /fetch", h.handleFetch)

	mux.HandleFunc("GET /fixtures", h.handleListFixtures)
	mux.HandleFunc("GET /fixtures/{name}", h.handleGetFixture)

	mux.HandleFunc("POST /workspaces", h.handleCreateWorkspace)
	mux.HandleFunc("GET /workspaces/{id}", h.handleGetWorkspace)
	mux.HandleFunc("DELETE /workspaces/{id}", h.handleDeleteWorkspace)
	mux.HandleFunc("PUT /workspaces/{id}/buffer", h.handleSetBuffer)
	mux.HandleFunc("PUT /workspaces/{id}/document", h.handleReplaceDocument)
	mux.HandleFunc("POST /workspaces/{id}/fixtures/{name}", h.handleLoadFixture)
	mux.HandleFunc("POST /workspaces/{id}/edits", h.handleApplyEdit)
	mux.HandleFunc("POST /workspaces/{id}/fetch", h.handleWorkspaceFetch)
	mux.HandleFunc("POST /workspaces/{id}/{action}", h.handleWorkspaceAction)

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /view/{id}", h.handleView)
	mux.HandleFunc("POST /view", h.handleViewAction)
}

// Routes 返回带日志和 CORS 中间件的完整处理链
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: h.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})
	return requestLogger(h.logger)(c.Handler(mux))
}

// handleHealth 健康检查
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	policies := h.pipeline.Registry().Names()
	sort.Strings(policies)

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Concurrency:     cap(h.semaphore),
		Available:       cap(h.semaphore) - len(h.semaphore),
		CycleTLSEnabled: h.config.EnableCycleTLS,
		Store:           h.storeName,
		Policies:        policies,
		Variants:        h.catalog.VariantNames(),
	})
}

// acquire 获取信号量，满载时直接拒绝
func (h *Handler) acquire() (func(), error) {
	select {
	case h.semaphore <- struct{}{}:
		return func() { <-h.semaphore }, nil
	default:
		return nil, apperr.New(apperr.KindUnavailable, "server is busy")
	}
}

// decode 读取并校验 JSON 请求体
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.KindValidation, "request body too large", err)
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	return nil
}

// bodyLimit 单个请求体上限，留出 JSON 转义的余量
func (h *Handler) bodyLimit() int64 {
	limit := int64(h.config.MaxHTMLBytes) * 2
	if limit < 1<<20 {
		limit = 1 << 20
	}
	return limit
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("write response failed", "error", err)
	}
}

// writeError 按错误分类写出 {"error": message}，未分类错误不暴露细节
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
