package queue

import (
	"context"
	"time"

	"github.com/newsflow/draft-import-service/internal/fetcher"
	"github.com/newsflow/draft-import-service/internal/pipeline"
)

// PageFetcher 按 URL 取得页面
type PageFetcher interface {
	Page(ctx context.Context, req fetcher.Request, readable bool) (*fetcher.Page, error)
}

// NewImportHandler 返回执行导入流水线的任务处理函数。
// pages 为 nil 时不支持 URL 任务
func NewImportHandler(p *pipeline.Pipeline, pages PageFetcher) TaskHandler {
	return func(ctx context.Context, task *ImportTask) *ImportResult {
		start := time.Now()
		result := &ImportResult{TaskID: task.ID, URL: task.URL}
		fail := func(err error) *ImportResult {
			result.Error = err.Error()
			result.Duration = time.Since(start).Milliseconds()
			return result
		}

		src := task.HTML
		if src == "" && task.URL != "" {
			if pages == nil {
				result.Error = "url tasks are not supported"
				return result
			}
			page, err := pages.Page(ctx, fetcher.Request{URL: task.URL, Strategy: fetcher.StrategyAuto}, false)
			if err != nil {
				return fail(err)
			}
			src = page.HTML
		}

		res, err := p.Import(src, pipeline.Options{Sanitize: task.Sanitize, Policy: task.Policy})
		if err != nil {
			return fail(err)
		}

		result.Success = true
		result.Document = res.Document
		result.HTML = res.HTML
		result.PlainText = res.PlainText
		result.Policy = res.Policy
		result.Duration = time.Since(start).Milliseconds()
		return result
	}
}
