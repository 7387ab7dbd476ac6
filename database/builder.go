package database

import (
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/logging"
)

// Builder 数据库配置构建器
type Builder struct {
	configs []DatabaseOptions
	names   map[string]bool
	errors  error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{
		names: make(map[string]bool),
	}
}

// Add 添加数据库配置
// name: 实例名称
// dialector: GORM 驱动 (e.g. sqlite.Open(dsn))
// configure: 可选的配置函数
func (b *Builder) Add(name string, dialector gorm.Dialector, configure func(*DatabaseOptions)) *Builder {
	if b.names[name] {
		b.errors = multierr.Append(b.errors, fmt.Errorf("database '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, dialector)
	if configure != nil {
		configure(opts)
	}

	if err := opts.Validate(); err != nil {
		b.errors = multierr.Append(b.errors, fmt.Errorf("invalid configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = true
	b.configs = append(b.configs, *opts)
	return b
}

// Err 返回配置过程中累积的错误
func (b *Builder) Err() error {
	if b.errors != nil {
		return fmt.Errorf("database configuration errors: %w", b.errors)
	}
	return nil
}

// Names 按添加顺序返回数据库名称
func (b *Builder) Names() []string {
	names := make([]string, len(b.configs))
	for i, c := range b.configs {
		names[i] = c.Name
	}
	return names
}

// Build 构建数据库工厂
func (b *Builder) Build(logger logging.Logger) (*DatabaseFactory, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}

	factory := NewDatabaseFactory(logger)
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			return nil, fmt.Errorf("failed to register database '%s': %w", opts.Name, err)
		}
	}
	return factory, nil
}
