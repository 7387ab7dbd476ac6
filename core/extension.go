package core

import (
	"fmt"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/logging"
)

// Extension 定义应用程序扩展的基础接口
// 扩展模块应该实现 BeanConfigurator 或 AspectConfigurator 接口（或两者都实现）
type Extension interface {
	// Name 返回扩展的名称，用于日志记录和调试
	Name() string
}

// BeanConfigurator 负责登记 bean 定义与处理器
type BeanConfigurator interface {
	ConfigureBeans(rt *Runtime) error
}

// AspectConfigurator 负责登记通知与装饰器
type AspectConfigurator interface {
	ConfigureAspects(proxies *aop.AutoProxyCreator) error
}

// validateExtension 验证扩展是否实现了支持的接口
// 如果未实现任何支持的接口，将 panic
func validateExtension(ext Extension) {
	_, isBeanConfigurator := ext.(BeanConfigurator)
	_, isAspectConfigurator := ext.(AspectConfigurator)

	if !isBeanConfigurator && !isAspectConfigurator {
		panic(fmt.Sprintf("ioc: Extension '%s' does not implement any supported interfaces (BeanConfigurator, AspectConfigurator). \n"+
			"Check if your method signatures exactly match the interface definitions.", ext.Name()))
	}
}

// extensionOption 把扩展转换为 Option
func extensionOption(ext Extension) Option {
	return func(rt *Runtime) error {
		rt.Logger.Debug("Applying extension", logging.Field{Key: "extension", Value: ext.Name()})
		if bc, ok := ext.(BeanConfigurator); ok {
			if err := bc.ConfigureBeans(rt); err != nil {
				return fmt.Errorf("extension %s: %w", ext.Name(), err)
			}
		}
		if ac, ok := ext.(AspectConfigurator); ok {
			if err := ac.ConfigureAspects(rt.Context.AutoProxy()); err != nil {
				return fmt.Errorf("extension %s: %w", ext.Name(), err)
			}
		}
		return nil
	}
}
