package fetcher

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/newsflow/draft-import-service/internal/apperr"
)

// Page 预处理后的页面，HTML 可直接放入工作区缓冲区
type Page struct {
	URL         string  `json:"url"`
	FinalURL    string  `json:"finalUrl"`
	Title       string  `json:"title,omitempty"`
	Byline      string  `json:"byline,omitempty"`
	Excerpt     string  `json:"excerpt,omitempty"`
	SiteName    string  `json:"siteName,omitempty"`
	HTML        string  `json:"html"`
	Images      []Image `json:"images,omitempty"`
	StatusCode  int     `json:"statusCode"`
	ContentType string  `json:"contentType,omitempty"`
	Strategy    string  `json:"strategy"`
	Duration    int64   `json:"duration"`
}

// Page 抓取并预处理页面。readable 为 true 时先用 Readability 提取正文
func (f *Fetcher) Page(ctx context.Context, req Request, readable bool) (*Page, error) {
	result := f.Fetch(ctx, req)
	if errors.Is(result.Error, ErrBlockedAddress) {
		return nil, apperr.Wrap(apperr.KindForbidden, "fetch "+req.URL+": "+ErrBlockedAddress.Error(), result.Error)
	}
	if result.Error != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "fetch "+req.URL+": "+result.Error.Error(), result.Error)
	}

	page := &Page{
		URL:         req.URL,
		FinalURL:    result.FinalURL,
		StatusCode:  result.StatusCode,
		ContentType: result.ContentType,
		Strategy:    result.Strategy,
		Duration:    result.Duration.Milliseconds(),
	}

	base, err := url.Parse(result.FinalURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "invalid final url", err)
	}

	body := result.HTML
	if readable {
		article, err := readability.FromReader(strings.NewReader(body), base)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "extract readable content", err)
		}
		page.Title = article.Title
		page.Byline = article.Byline
		page.Excerpt = article.Excerpt
		page.SiteName = article.SiteName
		body = article.Content
	}

	processed, images, err := f.preprocess.Process(body, base)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "preprocess html", err)
	}
	page.HTML = processed
	page.Images = images
	return page, nil
}
