package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/core"
)

const (
	// FactoryBeanName 客户端工厂在容器中的名称
	FactoryBeanName = "redisClientFactory"
	// DefaultName 名为 default 的客户端按类型注入时优先
	DefaultName = "default"
)

// BeanName 返回客户端在容器中的名称
func BeanName(name string) string {
	return "redis." + name
}

// BuilderOption 用于配置 Redis Builder
type BuilderOption func(*Builder)

// WithClient 添加 Redis 客户端配置
func WithClient(name string, opts ...func(*RedisClientOptions)) BuilderOption {
	return func(b *Builder) {
		var configure func(*RedisClientOptions)
		if len(opts) > 0 {
			configure = func(o *RedisClientOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.AddClient(name, configure)
	}
}

// New 启用 Redis 能力。
// 每个客户端登记为 redis.<name>（*redis.Client），由工厂方法 Get 创建。
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}
		if err := builder.Err(); err != nil {
			return err
		}

		logger := rt.Logger.WithCategory("redis")
		rt.Define(bean.NewDefinition(FactoryBeanName, nil, bean.WithFactory(func() (*RedisClientFactory, error) {
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
			rt.Define(bean.NewDefinition(BeanName(name), bean.TypeOf[*redis.Client](), defOpts...))
		}

		rt.Features.Set(builder)
		return nil
	}
}
