// Package ioc 是容器的入口，组装 core 中的构建器与运行流程。
package ioc

import "github.com/gocrud/ioc/core"

// NewApplicationBuilder 创建应用程序构建器
// 这是创建应用程序的入口点
func NewApplicationBuilder() *core.ApplicationBuilder {
	return core.NewApplicationBuilder()
}
