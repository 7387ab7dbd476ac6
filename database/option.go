package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/core"
)

const (
	// FactoryBeanName 连接工厂在容器中的名称
	FactoryBeanName = "databaseFactory"
	// DefaultName 名为 default 的数据库按类型注入时优先
	DefaultName = "default"
)

// BeanName 返回数据库连接在容器中的名称
func BeanName(name string) string {
	return "database." + name
}

// BuilderOption 用于配置 Database Builder
type BuilderOption func(*Builder)

// WithDatabase 添加数据库配置
func WithDatabase(name string, dialector gorm.Dialector, opts ...func(*DatabaseOptions)) BuilderOption {
	return func(b *Builder) {
		// 将变长参数转换为单个配置函数
		var configure func(*DatabaseOptions)
		if len(opts) > 0 {
			configure = func(o *DatabaseOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.Add(name, dialector, configure)
	}
}

// WithSQLite 添加 SQLite 数据库
func WithSQLite(name, dsn string, opts ...func(*DatabaseOptions)) BuilderOption {
	return WithDatabase(name, sqlite.Open(dsn), opts...)
}

// New 启用数据库能力。
// 工厂登记为 databaseFactory，每个连接登记为 database.<name>（*gorm.DB），
// 连接由工厂方法 Get 创建，容器关闭时由工厂统一关闭。
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}
		if err := builder.Err(); err != nil {
			return err
		}

		logger := rt.Logger.WithCategory("database")
		rt.Define(bean.NewDefinition(FactoryBeanName, nil, bean.WithFactory(func() (*DatabaseFactory, error) {
			return builder.Build(logger)
		})))

		for _, name := range builder.Names() {
			defOpts := []bean.Option{
				bean.WithFactoryMethod(FactoryBeanName, "Get"),
				bean.WithArgs(name),
			}
			if name == DefaultName {
				defOpts = append(defOpts, bean.WithPrimary())
			}
			rt.Define(bean.NewDefinition(BeanName(name), bean.TypeOf[*gorm.DB](), defOpts...))
		}

		rt.Features.Set(builder)
		return nil
	}
}
