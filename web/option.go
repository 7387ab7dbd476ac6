package web

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

// HostBeanName Web 主机在容器中的名称
const HostBeanName = "webHost"

// ConfigSection Web 配置节
const ConfigSection = "web"

// Options 对应配置节 web
type Options struct {
	Port int    `json:"port"`
	Mode string `json:"mode"`
}

// BuilderOption 用于配置 Web Builder
type BuilderOption func(*Builder)

// WithPort 设置端口
func WithPort(port int) BuilderOption {
	return func(b *Builder) {
		b.UsePort(port)
	}
}

// WithMode 设置 Gin 模式
func WithMode(mode string) BuilderOption {
	return func(b *Builder) {
		b.SetMode(mode)
	}
}

// WithMiddleware 添加全局中间件
func WithMiddleware(middleware ...gin.HandlerFunc) BuilderOption {
	return func(b *Builder) {
		b.Use(middleware...)
	}
}

// WithController 添加控制器
func WithController(name string, ctor any) BuilderOption {
	return func(b *Builder) {
		b.AddController(name, ctor)
	}
}

// New 启用 Web 能力
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		options, err := config.LoadOrDefault(rt.Configuration, ConfigSection, Options{Port: 8080, Mode: gin.ReleaseMode})
		if err != nil {
			return fmt.Errorf("web: failed to load options: %w", err)
		}

		// 1. 创建 WebBuilder
		builder := NewBuilder().UsePort(options.Port)
		if options.Mode != "" {
			builder.SetMode(options.Mode)
		}
		for _, opt := range opts {
			opt(builder)
		}

		// 2. 注册为 Feature
		rt.Features.Set(builder)

		// 控制器登记为单例 bean
		for _, c := range builder.controllers {
			if err := core.AddSingleton[Controller](c.name, c.ctor)(rt); err != nil {
				return fmt.Errorf("web: failed to register controller: %w", err)
			}
		}

		// 3. 注册 Host 为托管服务，容器 Start 时启动
		logger := rt.Logger
		return core.WithHostedService(HostBeanName, func() *Host {
			return builder.Build(logger)
		})(rt)
	}
}
