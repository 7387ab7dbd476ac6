package mongodb

import (
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/core"
)

const (
	// FactoryBeanName 客户端工厂在容器中的名称
	FactoryBeanName = "mongoFactory"
	// DefaultName 名为 default 的客户端按类型注入时优先
	DefaultName = "default"
)

// BeanName 返回客户端在容器中的名称
func BeanName(name string) string {
	return "mongodb." + name
}

// BuilderOption 用于配置 MongoDB Builder
type BuilderOption func(*Builder)

// WithClient 添加 MongoDB 客户端配置
func WithClient(name string, uri string, opts ...func(*MongoOptions)) BuilderOption {
	return func(b *Builder) {
		var configure func(*MongoOptions)
		if len(opts) > 0 {
			configure = func(o *MongoOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.Add(name, uri, configure)
	}
}

// New 启用 MongoDB 能力
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}
		if err := builder.Err(); err != nil {
			return err
		}

		logger := rt.Logger.WithCategory("mongodb")
		rt.Define(bean.NewDefinition(FactoryBeanName, nil, bean.WithFactory(func() (*MongoFactory, error) {
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
			rt.Define(bean.NewDefinition(BeanName(name), bean.TypeOf[*mongo.Client](), defOpts...))
		}

		rt.Features.Set(builder)
		return nil
	}
}
