package core

import "github.com/gocrud/ioc/bean"

// DefinitionSource 在每次刷新时提供 bean 定义。
type DefinitionSource interface {
	Definitions() ([]*bean.Definition, error)
}

// Definitions 固定的定义列表。
type Definitions []*bean.Definition

func (d Definitions) Definitions() ([]*bean.Definition, error) {
	return d, nil
}

// SourceFunc 用函数实现 DefinitionSource。
type SourceFunc func() ([]*bean.Definition, error)

func (fn SourceFunc) Definitions() ([]*bean.Definition, error) {
	return fn()
}
