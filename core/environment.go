package core

import (
	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/config"
)

// Environment 运行环境：环境名称加上配置属性。
type Environment interface {
	bean.Environment
	IsDevelopment() bool
	IsProduction() bool
	IsStaging() bool
	Configuration() config.Configuration
}

// environment 环境实现
type environment struct {
	name string
	cfg  config.Configuration
}

// NewEnvironment 创建环境，cfg 为 nil 时没有任何属性
func NewEnvironment(name string, cfg config.Configuration) Environment {
	if cfg == nil {
		cfg, _ = config.NewConfigurationBuilder().Build()
	}
	return &environment{name: name, cfg: cfg}
}

func (e *environment) Name() string {
	return e.name
}

// Property 读取配置中的标量值
func (e *environment) Property(key string) (string, bool) {
	return e.cfg.Lookup(key)
}

func (e *environment) Configuration() config.Configuration {
	return e.cfg
}

func (e *environment) IsDevelopment() bool {
	return e.name == "development"
}

func (e *environment) IsProduction() bool {
	return e.name == "production"
}

func (e *environment) IsStaging() bool {
	return e.name == "staging"
}
