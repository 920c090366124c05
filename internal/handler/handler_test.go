package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/config"
	"github.com/newsflow/draft-import-service/internal/fetcher"
	"github.com/newsflow/draft-import-service/internal/logger"
	"github.com/newsflow/draft-import-service/internal/pipeline"
	"github.com/newsflow/draft-import-service/internal/workspace"
)

type stubPages struct {
	page *fetcher.Page
	err  error
}

func (s *stubPages) Page(_ context.Context, req fetcher.Request, _ bool) (*fetcher.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := *s.page
	p.URL = req.URL
	return &p, nil
}

func newTestServer(t *testing.T, pages PageFetcher) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.MaxHTMLBytes = 64 * 1024
	cfg.EnableCycleTLS = false

	log := logger.Discard()
	p := pipeline.New(nil, cfg.MaxHTMLBytes, log)
	h := New(Deps{
		Config:     cfg,
		Pipeline:   p,
		Workspaces: workspace.NewService(workspace.NewMemoryStore(), p, nil, log),
		Pages:      pages,
		Logger:     log,
		StoreName:  "memory",
	})
	return h.Routes()
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.Store)
	assert.Equal(t, []string{"plain", "rich"}, resp.Policies)
	assert.Equal(t, resp.Concurrency, resp.Available)
	assert.False(t, resp.CycleTLSEnabled)
	assert.Contains(t, resp.Variants, "plugins-legacy")
}

func TestSanitize(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"rich 默认", `{"html":"<img src=x onerror=alert(1)//>"}`, http.StatusOK, ""},
		{"rich 保留链接", `{"html":"<p><a href=\"https://x.test\" onclick=\"x()\">x</a></p>"}`, http.StatusOK, `<p><a href="https://x.test">x</a></p>`},
		{"plain", `{"html":"<p>Hello <b>World</b></p>","policy":"plain"}`, http.StatusOK, "Hello World"},
		{"临时策略", `{"html":"<p><b>x</b></p>","allowedTags":["b"]}`, http.StatusOK, "<b>x</b>"},
		{"临时策略含 script", `{"html":"x","allowedTags":["script"]}`, http.StatusBadRequest, ""},
		{"临时策略含事件属性", `{"html":"x","allowedTags":["p"],"allowedAttributes":["onclick"]}`, http.StatusBadRequest, ""},
		{"未知策略", `{"html":"x","policy":"strict"}`, http.StatusBadRequest, ""},
		{"非法 JSON", `{"html":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/sanitize", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				assert.NotEmpty(t, decodeJSON[map[string]string](t, rec)["error"])
				return
			}
			assert.Equal(t, tt.want, decodeJSON[SanitizeResponse](t, rec).Sanitized)
		})
	}
}

func TestImportAndPlainText(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/import", `{"html":"<h1>T</h1><p><a href=\"https://x.test\">x</a></p>","sanitize":true,"decorators":["IMAGE"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeJSON[pipeline.Result](t, rec)
	assert.Equal(t, "<h1>T</h1>\n<p>x</p>", res.HTML)
	assert.Equal(t, "rich", res.Policy)
	assert.Len(t, res.Document.EntityMap, 1)

	rec = do(t, srv, http.MethodPost, "/import", `{"html":"x","decorators":["VIDEO"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/import", `{"html":"`+strings.Repeat("x", 64*1024+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/plain-text", `{"html":"<h1>a</h1><p>b</p>"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ab", decodeJSON[pipeline.Result](t, rec).PlainText)

	rec = do(t, srv, http.MethodGet, "/import", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatch(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/batch", `{"items":[{"html":"<p>a</p>"},{"html":"<p>b</p>","sanitize":true},{"html":"c","sanitize":true,"policy":"nope"}],"concurrency":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[BatchResponse](t, rec)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "<p>a</p>", resp.Results[0].Result.HTML)
	assert.Equal(t, "<p>b</p>", resp.Results[1].Result.HTML)
	assert.Nil(t, resp.Results[2].Result)
	assert.Contains(t, resp.Results[2].Error, "unknown sanitizer policy")

	rec = do(t, srv, http.MethodPost, "/batch", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	items := strings.TrimSuffix(strings.Repeat(`{"html":"x"},`, 101), ",")
	rec = do(t, srv, http.MethodPost, "/batch", `{"items":[`+items+`]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/batch", `{"items":[{"html":"x"}],"concurrency":50}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetch(t *testing.T) {
	t.Run("未配置抓取器", func(t *testing.T) {
		rec := do(t, newTestServer(t, nil), http.MethodPost, "/fetch", `{"url":"https://x.test/"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("抓取并导入", func(t *testing.T) {
		pages := &stubPages{page: &fetcher.Page{HTML: `<p>remote <img src="https://x.test/a.png" onerror="x()"></p>`, Strategy: "standard"}}
		rec := do(t, newTestServer(t, pages), http.MethodPost, "/fetch", `{"url":"https://x.test/","import":true,"sanitize":true}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeJSON[FetchResponse](t, rec)
		assert.Equal(t, "https://x.test/", resp.Page.URL)
		require.NotNil(t, resp.Result)
		assert.Equal(t, "<p>remote</p>", resp.Result.HTML)
	})

	t.Run("参数校验", func(t *testing.T) {
		srv := newTestServer(t, &stubPages{page: &fetcher.Page{}})
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/fetch", `{"url":"javascript:alert(1)"}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/fetch", `{"url":"https://x.test/","strategy":"browser"}`).Code)
	})

	t.Run("拒绝回环地址", func(t *testing.T) {
		hit := false
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hit = true
			_, _ = io.WriteString(w, "<p>INTERNAL "+r.Header.Get("X-Injected")+"</p>")
		}))
		defer upstream.Close()

		cfg := config.DefaultConfig()
		cfg.EnableCycleTLS = false
		f := fetcher.New(cfg, logger.Discard())
		defer f.Close()

		body := `{"url":"` + upstream.URL + `","strategy":"standard","headers":{"X-Injected":"hdr"}}`
		rec := do(t, newTestServer(t, f), http.MethodPost, "/fetch", body)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "INTERNAL")
		assert.False(t, hit)
	})

	t.Run("上游失败", func(t *testing.T) {
		pages := &stubPages{err: apperr.Wrap(apperr.KindUnavailable, "fetch failed", errors.New("boom"))}
		rec := do(t, newTestServer(t, pages), http.MethodPost, "/fetch", `{"url":"https://x.test/"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestFixtures(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/fixtures", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"exploit"`)
	assert.Contains(t, rec.Body.String(), `"name":"wysiwyg"`)

	rec = do(t, srv, http.MethodGet, "/fixtures/safe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "podcastchoices.com")

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/fixtures/nope", "").Code)
}

func TestWorkspaceFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/workspaces", `{"variant":"draft"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ws := decodeJSON[workspace.Workspace](t, rec)
	base := "/workspaces/" + ws.ID

	rec = do(t, srv, http.MethodPost, base+"/fixtures/exploit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeJSON[workspace.Workspace](t, rec).Buffer, "onerror")

	rec = do(t, srv, http.MethodPost, base+"/sanitize", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sanitized := decodeJSON[workspace.Workspace](t, rec)
	assert.NotContains(t, strings.ToLower(sanitized.HTML), "onerror")
	assert.Equal(t, workspace.ActionSanitize, sanitized.LastAction)

	rec = do(t, srv, http.MethodPost, base+"/read-only", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[workspace.Workspace](t, rec).ReadOnly)

	doc, err := json.Marshal(map[string]any{"document": sanitized.Document})
	require.NoError(t, err)
	rec = do(t, srv, http.MethodPut, base+"/document", string(doc))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPut, base+"/document", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, base+"/bogus", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/workspaces", `{"variant":"quill"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkspaceEditsMirrorExport(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/workspaces", `{"variant":"wysiwyg"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/workspaces/" + decodeJSON[workspace.Workspace](t, rec).ID

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, base+"/buffer", `{"buffer":"<p>hello</p>"}`).Code)
	rec = do(t, srv, http.MethodPost, base+"/import", "")
	require.Equal(t, http.StatusOK, rec.Code)
	key := decodeJSON[workspace.Workspace](t, rec).Document.Blocks[0].Key

	rec = do(t, srv, http.MethodPost, base+"/edits", `{"op":"toggle-inline-style","blockKey":"`+key+`","style":"BOLD"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ws := decodeJSON[workspace.Workspace](t, rec)
	assert.Equal(t, "<p><strong>hello</strong></p>", ws.HTML)
	assert.Equal(t, ws.HTML, ws.Buffer)

	rec = do(t, srv, http.MethodPost, base+"/edits", `{"op":"explode","blockKey":"`+key+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkspaceFetch(t *testing.T) {
	pages := &stubPages{page: &fetcher.Page{HTML: "<p>from remote</p>"}}
	srv := newTestServer(t, pages)

	rec := do(t, srv, http.MethodPost, "/workspaces", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/workspaces/" + decodeJSON[workspace.Workspace](t, rec).ID

	rec = do(t, srv, http.MethodPost, base+"/fetch", `{"url":"https://x.test/post"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "<p>from remote</p>", decodeJSON[workspace.Workspace](t, rec).Buffer)

	rec = do(t, srv, http.MethodPost, "/workspaces/missing/fetch", `{"url":"https://x.test/post"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestView(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/?variant=plugins-legacy", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/view/"))
	id := strings.TrimPrefix(location, "/view/")

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/view", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	rec = post(url.Values{"id": {id}, "action": {"load-exploit"}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, location, rec.Header().Get("Location"))

	rec = do(t, srv, http.MethodGet, location, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, `<textarea name="buffer"`)
	assert.Contains(t, page, "&lt;img src=x onerror=alert(1)//&gt;")
	assert.NotContains(t, page, "<img src=x")
	assert.Contains(t, page, `value="plain-text"`)

	rec = post(url.Values{"id": {id}, "action": {"sanitize"}, "buffer": {`<p>edited <a href="https://x.test">link</a></p><svg onload=alert(1)>`}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, location, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = rec.Body.String()
	assert.Contains(t, page, `<div class="editor"><p>edited <a href="https://x.test">link</a></p></div>`)
	assert.NotContains(t, page, "<svg")

	// 切换只读也会先保存文本框
	rec = post(url.Values{"id": {id}, "action": {"read-only"}, "buffer": {"<p>unsaved</p>"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = do(t, srv, http.MethodGet, location, "")
	assert.Contains(t, rec.Body.String(), `class="editor read-only"`)

	ws := decodeJSON[workspace.Workspace](t, do(t, srv, http.MethodGet, "/workspaces/"+id, ""))
	assert.Equal(t, "<p>unsaved</p>", ws.Buffer)
	assert.True(t, ws.ReadOnly)

	// 未知按钮不改动缓冲区
	assert.Equal(t, http.StatusNotFound, post(url.Values{"id": {id}, "action": {"explode"}, "buffer": {"<p>CHANGED</p>"}}).Code)
	ws = decodeJSON[workspace.Workspace](t, do(t, srv, http.MethodGet, "/workspaces/"+id, ""))
	assert.Equal(t, "<p>unsaved</p>", ws.Buffer)
	assert.Equal(t, workspace.ActionReadOnly, ws.LastAction)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/view/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, post(url.Values{"action": {"import"}}).Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/import", nil)
	req.Header.Set("Origin", "https://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
