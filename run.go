package ioc

import (
	"context"

	"github.com/gocrud/ioc/core"
)

// Run 以默认配置构建应用并运行，直到收到退出信号或托管服务失败
func Run(opts ...core.Option) error {
	return RunContext(context.Background(), opts...)
}

// RunContext 与 Run 相同，ctx 取消时退出
func RunContext(ctx context.Context, opts ...core.Option) error {
	app, err := NewApplicationBuilder().Configure(opts...).Build()
	if err != nil {
		return err
	}
	return app.RunAsync(ctx)
}
