package core

import (
	"time"

	"github.com/gocrud/ioc/config"
)

// ContextSection 容器配置所在的配置节
const ContextSection = "ioc"

// ContextOptions 容器行为配置，对应配置节 "ioc"：
//
//	ioc:
//	  lazy_init: false
//	  shutdown_timeout: 30s
//	  log_level: info
//	  environment: production
type ContextOptions struct {
	LazyInit        bool          // 刷新时不预先创建任何单例
	ShutdownTimeout time.Duration // 停止托管服务的超时
	LogLevel        string
	Environment     string
}

// DefaultContextOptions 返回默认配置
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		ShutdownTimeout: 30 * time.Second,
		Environment:     "development",
	}
}

// LoadContextOptions 从配置节 "ioc" 读取，缺失的键保留默认值
func LoadContextOptions(cfg config.Configuration) (ContextOptions, error) {
	opts := DefaultContextOptions()
	if cfg == nil {
		return opts, nil
	}
	section := cfg.GetSection(ContextSection)

	if _, ok := section.Lookup("lazy_init"); ok {
		v, err := section.GetBool("lazy_init")
		if err != nil {
			return opts, err
		}
		opts.LazyInit = v
	}
	if _, ok := section.Lookup("shutdown_timeout"); ok {
		v, err := section.GetDuration("shutdown_timeout")
		if err != nil {
			return opts, err
		}
		opts.ShutdownTimeout = v
	}
	if v, ok := section.Lookup("log_level"); ok {
		opts.LogLevel = v
	}
	if v, ok := section.Lookup("environment"); ok && v != "" {
		opts.Environment = v
	}
	return opts, nil
}
