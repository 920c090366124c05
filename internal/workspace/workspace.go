// Package workspace 保存每个演示会话的状态：原始 HTML 缓冲区和当前文档。
// 同一工作区上的操作串行执行，文档在每次导入时整体替换。
package workspace

import (
	"time"

	"github.com/newsflow/draft-import-service/internal/document"
)

// Action 最近一次执行的操作
type Action string

const (
	ActionCreate    Action = "create"
	ActionBuffer    Action = "buffer"
	ActionFixture   Action = "fixture"
	ActionSanitize  Action = "sanitize"
	ActionImport    Action = "import"
	ActionPlainText Action = "plain-text"
	ActionReadOnly  Action = "read-only"
	ActionEdit      Action = "edit"
	ActionReplace   Action = "replace"
)

// Workspace 演示会话
type Workspace struct {
	ID               string                `json:"id"`
	Variant          string                `json:"variant"`
	Buffer           string                `json:"buffer"`
	Sanitized        string                `json:"sanitized,omitempty"`
	Document         *document.Document    `json:"document"`
	HTML             string                `json:"html"`
	ReadOnly         bool                  `json:"readOnly"`
	SanitizeOnImport bool                  `json:"sanitizeOnImport"`
	MirrorExport     bool                  `json:"mirrorExport"`
	Decorators       []document.EntityType `json:"decorators"`
	LastAction       Action                `json:"lastAction"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}
