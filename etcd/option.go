package etcd

import (
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/core"
)

const (
	// FactoryBeanName 客户端工厂在容器中的名称
	FactoryBeanName = "etcdClientFactory"
	// DefaultName 名为 default 的客户端按类型注入时优先
	DefaultName = "default"
)

// BeanName 返回客户端在容器中的名称
func BeanName(name string) string {
	return "etcd." + name
}

// BuilderOption 用于配置 Etcd Builder
type BuilderOption func(*Builder)

// WithClient 添加 Etcd 客户端配置
func WithClient(name string, opts ...func(*EtcdClientOptions)) BuilderOption {
	return func(b *Builder) {
		var configure func(*EtcdClientOptions)
		if len(opts) > 0 {
			configure = func(o *EtcdClientOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.AddClient(name, configure)
	}
}

// WithEndpoints 设置服务器地址
func WithEndpoints(endpoints ...string) func(*EtcdClientOptions) {
	return func(o *EtcdClientOptions) {
		o.Endpoints = endpoints
	}
}

// New 启用 Etcd 能力
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}
		if err := builder.Err(); err != nil {
			return err
		}

		logger := rt.Logger.WithCategory("etcd")
		rt.Define(bean.NewDefinition(FactoryBeanName, nil, bean.WithFactory(func() (*EtcdClientFactory, error) {
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
			rt.Define(bean.NewDefinition(BeanName(name), bean.TypeOf[*clientv3.Client](), defOpts...))
		}

		rt.Features.Set(builder)
		return nil
	}
}
