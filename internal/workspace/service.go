package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/document"
	"github.com/newsflow/draft-import-service/internal/fixture"
	"github.com/newsflow/draft-import-service/internal/pipeline"
	"github.com/newsflow/draft-import-service/internal/sanitizer"
)

// Service 工作区操作。同一工作区的操作持锁执行，读-改-写期间不会交错
type Service struct {
	store    Store
	pipeline *pipeline.Pipeline
	catalog  *fixture.Catalog
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

// NewService 创建服务
func NewService(store Store, p *pipeline.Pipeline, catalog *fixture.Catalog, logger *slog.Logger) *Service {
	if catalog == nil {
		catalog = fixture.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		pipeline: p,
		catalog:  catalog,
		logger:   logger,
		now:      time.Now,
		locks:    make(map[string]*idLock),
	}
}

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// Create 按变体创建工作区，初始文档为空
func (s *Service) Create(ctx context.Context, variant string) (*Workspace, error) {
	v, err := s.catalog.Variant(variant)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ws := &Workspace{
		ID:               uuid.NewString(),
		Variant:          v.Name,
		Document:         document.Empty(),
		SanitizeOnImport: v.SanitizeOnImport,
		MirrorExport:     v.MirrorExport,
		Decorators:       v.Decorators,
		LastAction:       ActionCreate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	ws.HTML = s.pipeline.Export(ws.Document, ws.Decorators)

	if err := s.store.Save(ctx, ws); err != nil {
		return nil, err
	}
	s.logger.Info("workspace created", "workspace_id", ws.ID, "variant", ws.Variant)
	return ws, nil
}

// Get 读取工作区
func (s *Service) Get(ctx context.Context, id string) (*Workspace, error) {
	ws, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("workspace %s not found", id), err)
		}
		return nil, err
	}
	return ws, nil
}

// Delete 删除工作区
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("workspace %s not found", id), err)
		}
		return err
	}
	s.logger.Info("workspace deleted", "workspace_id", id)
	return nil
}

// SetBuffer 替换原始 HTML 缓冲区，不触发导入
func (s *Service) SetBuffer(ctx context.Context, id, buffer string) (*Workspace, error) {
	if err := s.pipeline.CheckSize(buffer); err != nil {
		return nil, err
	}
	return s.update(ctx, id, ActionBuffer, func(ws *Workspace) error {
		ws.Buffer = buffer
		return nil
	})
}

// LoadFixture 把内置样例写入缓冲区
func (s *Service) LoadFixture(ctx context.Context, id, name string) (*Workspace, error) {
	f, err := s.catalog.Fixture(name)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, ActionFixture, func(ws *Workspace) error {
		ws.Buffer = f.HTML
		return nil
	})
}

// Sanitize 按 rich 策略净化缓冲区后导入
func (s *Service) Sanitize(ctx context.Context, id string) (*Workspace, error) {
	return s.update(ctx, id, ActionSanitize, func(ws *Workspace) error {
		return s.run(ws, pipeline.Options{Sanitize: true, Policy: sanitizer.PolicyRich})
	})
}

// Import 导入缓冲区。旧版变体不净化，直接交给导入器
func (s *Service) Import(ctx context.Context, id string) (*Workspace, error) {
	return s.update(ctx, id, ActionImport, func(ws *Workspace) error {
		opts := pipeline.Options{Sanitize: ws.SanitizeOnImport}
		if opts.Sanitize {
			opts.Policy = sanitizer.PolicyRich
		}
		return s.run(ws, opts)
	})
}

// PlainText 按纯文本策略净化后导入
func (s *Service) PlainText(ctx context.Context, id string) (*Workspace, error) {
	return s.update(ctx, id, ActionPlainText, func(ws *Workspace) error {
		return s.run(ws, pipeline.Options{Sanitize: true, Policy: sanitizer.PolicyPlain})
	})
}

// ToggleReadOnly 切换只读
func (s *Service) ToggleReadOnly(ctx context.Context, id string) (*Workspace, error) {
	return s.update(ctx, id, ActionReadOnly, func(ws *Workspace) error {
		ws.ReadOnly = !ws.ReadOnly
		return nil
	})
}

// ApplyEdit 执行一次编辑器修改
func (s *Service) ApplyEdit(ctx context.Context, id string, edit document.Edit) (*Workspace, error) {
	return s.update(ctx, id, ActionEdit, func(ws *Workspace) error {
		if ws.ReadOnly {
			return apperr.Forbidden("workspace %s is read-only", id)
		}
		if err := ws.Document.Apply(edit); err != nil {
			return apperr.Wrap(apperr.KindValidation, err.Error(), err)
		}
		s.rendered(ws)
		return nil
	})
}

// ReplaceDocument 用编辑器提交的文档整体替换当前文档
func (s *Service) ReplaceDocument(ctx context.Context, id string, doc *document.Document) (*Workspace, error) {
	if doc == nil {
		return nil, apperr.Validation("document is required")
	}
	if err := doc.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	return s.update(ctx, id, ActionReplace, func(ws *Workspace) error {
		if ws.ReadOnly {
			return apperr.Forbidden("workspace %s is read-only", id)
		}
		ws.Document = doc
		s.rendered(ws)
		return nil
	})
}

// run 执行流水线，文档整体替换
func (s *Service) run(ws *Workspace, opts pipeline.Options) error {
	opts.Decorators = ws.Decorators
	res, err := s.pipeline.Import(ws.Buffer, opts)
	if err != nil {
		return err
	}
	ws.Document = res.Document
	ws.Sanitized = res.Sanitized
	ws.HTML = res.HTML
	return nil
}

// rendered 编辑器修改后重新导出；开启回写时导出结果覆盖缓冲区
func (s *Service) rendered(ws *Workspace) {
	ws.HTML = s.pipeline.Export(ws.Document, ws.Decorators)
	if ws.MirrorExport {
		ws.Buffer = ws.HTML
	}
}

func (s *Service) update(ctx context.Context, id string, action Action, fn func(ws *Workspace) error) (*Workspace, error) {
	unlock := s.lock(id)
	defer unlock()

	ws, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(ws); err != nil {
		return nil, err
	}

	ws.LastAction = action
	ws.UpdatedAt = s.now()
	if err := s.store.Save(ctx, ws); err != nil {
		return nil, err
	}

	s.logger.Debug("workspace updated",
		"workspace_id", id,
		"action", action,
		"blocks", len(ws.Document.Blocks),
		"read_only", ws.ReadOnly,
	)
	return ws, nil
}
