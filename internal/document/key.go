package document

import (
	"strings"

	"github.com/google/uuid"
)

// newKey 生成 5 位块 key
func newKey() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:5]
}

// keyGen 在一次导入内保证 key 不重复
type keyGen struct {
	seen map[string]struct{}
}

func (g *keyGen) next() string {
	if g.seen == nil {
		g.seen = make(map[string]struct{})
	}
	for {
		k := newKey()
		if _, dup := g.seen[k]; !dup {
			g.seen[k] = struct{}{}
			return k
		}
	}
}
