package sandbox

import (
	"path/filepath"

	"hyperbuild-web/internal/domain/services"
)

// Factory 在同一根目录下为每个会话创建独立的本地沙箱
type Factory struct {
	root string
}

// NewFactory 创建沙箱工厂
func NewFactory(root string) *Factory {
	return &Factory{root: root}
}

// Create 创建以会话 ID 命名的沙箱目录
func (f *Factory) Create(sessionID string) (services.Environment, error) {
	l, err := NewLocal(filepath.Join(f.root, sessionID))
	if err != nil {
		return nil, err
	}
	return l, nil
}
