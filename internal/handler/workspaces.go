package handler

import (
	"net/http"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/document"
	"github.com/newsflow/draft-import-service/internal/workspace"
)

// CreateWorkspaceRequest 创建工作区
type CreateWorkspaceRequest struct {
	Variant string `json:"variant,omitempty"`
}

// BufferRequest 替换缓冲区
type BufferRequest struct {
	Buffer string `json:"buffer"`
}

// DocumentRequest 编辑器提交的整份文档
type DocumentRequest struct {
	Document *document.Document `json:"document" validate:"required"`
}

// WorkspaceFetchRequest 抓取远程页面写入缓冲区
type WorkspaceFetchRequest struct {
	URL         string `json:"url" validate:"required,http_url"`
	Strategy    string `json:"strategy,omitempty" validate:"omitempty,oneof=auto cycletls standard"`
	Readability bool   `json:"readability"`
}

func (h *Handler) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if r.ContentLength != 0 {
		if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	ws, err := h.workspaces.Create(r.Context(), req.Variant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ws)
}

func (h *Handler) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.Get(r.Context(), r.PathValue("id"))
	h.respondWorkspace(w, r, ws, err)
}

func (h *Handler) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.workspaces.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetBuffer(w http.ResponseWriter, r *http.Request) {
	var req BufferRequest
	if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ws, err := h.workspaces.SetBuffer(r.Context(), r.PathValue("id"), req.Buffer)
	h.respondWorkspace(w, r, ws, err)
}

func (h *Handler) handleReplaceDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ws, err := h.workspaces.ReplaceDocument(r.Context(), r.PathValue("id"), req.Document)
	h.respondWorkspace(w, r, ws, err)
}

func (h *Handler) handleLoadFixture(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.LoadFixture(r.Context(), r.PathValue("id"), r.PathValue("name"))
	h.respondWorkspace(w, r, ws, err)
}

func (h *Handler) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	var edit document.Edit
	if err := h.decode(w, r, h.bodyLimit(), &edit); err != nil {
		h.writeError(w, r, err)
		return
	}
	ws, err := h.workspaces.ApplyEdit(r.Context(), r.PathValue("id"), edit)
	h.respondWorkspace(w, r, ws, err)
}

func (h *Handler) handleWorkspaceFetch(w http.ResponseWriter, r *http.Request) {
	var req WorkspaceFetchRequest
	if err := h.decode(w, r, h.bodyLimit(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	if _, err := h.workspaces.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.fetchPage(r.Context(), FetchRequest{URL: req.URL, Strategy: req.Strategy, Readability: req.Readability})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ws, err := h.workspaces.SetBuffer(r.Context(), id, page.HTML)
	h.respondWorkspace(w, r, ws, err)
}

// handleWorkspaceAction 按钮操作：sanitize / import / plain-text / read-only
func (h *Handler) handleWorkspaceAction(w http.ResponseWriter, r *http.Request) {
	release, err := h.acquire()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	ws, err := h.runAction(r, r.PathValue("id"), workspace.Action(r.PathValue("action")))
	h.respondWorkspace(w, r, ws, err)
}

func (h *Handler) runAction(r *http.Request, id string, action workspace.Action) (*workspace.Workspace, error) {
	ctx := r.Context()
	switch action {
	case workspace.ActionSanitize:
		return h.workspaces.Sanitize(ctx, id)
	case workspace.ActionImport:
		return h.workspaces.Import(ctx, id)
	case workspace.ActionPlainText:
		return h.workspaces.PlainText(ctx, id)
	case workspace.ActionReadOnly:
		return h.workspaces.ToggleReadOnly(ctx, id)
	default:
		return nil, apperr.NotFound("unknown action %q", action)
	}
}

func (h *Handler) respondWorkspace(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ws)
}
