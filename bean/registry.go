package bean

import (
	"errors"
	"sync"
)

// Registry 按名称保存 bean 定义，并记住注册顺序。
// 重复注册同名定义会覆盖旧定义，但保留其原有顺序。
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*Definition
	names []string
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
	}
}

// Register 插入或覆盖定义。不校验对其他 bean 的引用。
func (r *Registry) Register(def *Definition) error {
	_, err := r.register(def)
	return err
}

func (r *Registry) register(def *Definition) (replaced bool, err error) {
	if def == nil {
		return false, errors.New("bean: nil definition")
	}
	if def.Name == "" {
		return false, errors.New("bean: definition name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, replaced = r.defs[def.Name]; !replaced {
		r.names = append(r.names, def.Name)
	}
	r.defs[def.Name] = def
	return replaced, nil
}

// Lookup 返回定义，不存在时返回 *NotFoundError。
func (r *Registry) Lookup(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return def, nil
}

// Contains 报告是否存在名为 name 的定义。
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Names 按注册顺序返回所有定义名称。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Len 返回定义数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
