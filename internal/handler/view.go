package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/fixture"
	"github.com/newsflow/draft-import-service/internal/workspace"
)

//go:embed templates/*.html
var templateFS embed.FS

// 页面按钮
const (
	viewLoadSafe    = "load-safe"
	viewLoadExploit = "load-exploit"
)

type viewAction struct {
	Name  string
	Label string
}

var viewActions = []viewAction{
	{viewLoadSafe, "Load safe fixture"},
	{viewLoadExploit, "Load exploit fixture"},
	{string(workspace.ActionSanitize), "Sanitize HTML"},
	{string(workspace.ActionImport), "Import HTML"},
	{string(workspace.ActionPlainText), "Plain Text"},
	{string(workspace.ActionReadOnly), "Toggle read-only"},
}

type viewData struct {
	Workspace    *workspace.Workspace
	Rendered     template.HTML
	DocumentJSON string
	Variants     []string
	Actions      []viewAction
}

type viewRenderer struct {
	tmpl *template.Template
}

func newViewRenderer() *viewRenderer {
	return &viewRenderer{
		tmpl: template.Must(template.New("view.html").ParseFS(templateFS, "templates/view.html")),
	}
}

func (v *viewRenderer) render(w http.ResponseWriter, data viewData) error {
	var buf bytes.Buffer
	if err := v.tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// handleIndex 创建工作区并跳转到页面
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.Create(r.Context(), r.URL.Query().Get("variant"))
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}
	http.Redirect(w, r, "/view/"+url.PathEscape(ws.ID), http.StatusSeeOther)
}

// handleView 渲染编辑器、文本框和按钮
func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}

	state, err := json.MarshalIndent(ws.Document, "", "  ")
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}

	err = h.view.render(w, viewData{
		Workspace: ws,
		// 导出器已转义全部文本并校验了 URL
		Rendered:     template.HTML(ws.HTML),
		DocumentJSON: string(state),
		Variants:     h.catalog.VariantNames(),
		Actions:      viewActions,
	})
	if err != nil {
		h.logger.Error("render view failed", "workspace_id", ws.ID, "error", err)
	}
}

// handleViewAction 处理表单按钮，完成后跳回页面
func (h *Handler) handleViewAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())
	if err := r.ParseForm(); err != nil {
		h.writeViewError(w, r, apperr.Wrap(apperr.KindValidation, "invalid form", err))
		return
	}

	id := r.PostForm.Get("id")
	action := r.PostForm.Get("action")
	if id == "" {
		h.writeViewError(w, r, apperr.Validation("id is required"))
		return
	}

	release, err := h.acquire()
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}
	defer release()

	ctx := r.Context()
	switch action {
	case viewLoadSafe:
		_, err = h.workspaces.LoadFixture(ctx, id, fixture.Safe)
	case viewLoadExploit:
		_, err = h.workspaces.LoadFixture(ctx, id, fixture.Exploit)
	case string(workspace.ActionSanitize), string(workspace.ActionImport),
		string(workspace.ActionPlainText), string(workspace.ActionReadOnly):
		// 文本框与缓冲区双向绑定，先保存再执行
		if buffer, ok := r.PostForm["buffer"]; ok {
			if _, err = h.workspaces.SetBuffer(ctx, id, buffer[0]); err != nil {
				break
			}
		}
		_, err = h.runAction(r, id, workspace.Action(action))
	default:
		err = apperr.NotFound("unknown action %q", action)
	}
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}

	http.Redirect(w, r, "/view/"+url.PathEscape(id), http.StatusSeeOther)
}

func (h *Handler) writeViewError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("view request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	http.Error(w, message, status)
}
