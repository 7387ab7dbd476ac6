package scheduling

import (
	"fmt"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

// BeanName 调度器在容器中的名称
const BeanName = "scheduler"

// ConfigSection 调度器配置节
const ConfigSection = "scheduling"

// Builder Cron 配置构建器
type Builder struct {
	options Options
	jobs    []jobDefinition
}

// BuilderOption 用于配置 Cron Builder
type BuilderOption func(*Builder)

// WithSeconds 启用秒级精度
func WithSeconds() BuilderOption {
	return func(b *Builder) {
		b.options.EnableSeconds = true
	}
}

// WithLocation 设置时区
func WithLocation(location string) BuilderOption {
	return func(b *Builder) {
		b.options.Location = location
	}
}

// EnableCronLogger 启用 cron 库的内部调度日志
func EnableCronLogger() BuilderOption {
	return func(b *Builder) {
		b.options.EnableCronLogger = true
	}
}

// AddJob 添加函数任务，参数自动从容器解析
//
// 示例：
//
//	scheduling.AddJob("*/5 * * * *", "sync-data", func(ctx context.Context, svc *DataService) error {
//	    return svc.Sync(ctx)
//	})
func AddJob(spec, name string, handler any) BuilderOption {
	return func(b *Builder) {
		b.jobs = append(b.jobs, jobDefinition{spec: spec, name: name, handler: handler})
	}
}

// New 启用定时任务能力。配置节 scheduling 提供默认值，BuilderOption 覆盖之。
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		options, err := config.LoadOrDefault(rt.Configuration, ConfigSection, Options{Location: "UTC"})
		if err != nil {
			return fmt.Errorf("scheduling: failed to load options: %w", err)
		}
		builder := &Builder{options: options}
		for _, opt := range opts {
			opt(builder)
		}

		logger := rt.Logger
		rt.Define(bean.NewDefinition(BeanName, nil, bean.WithFactory(func() (*Scheduler, error) {
			s, err := NewScheduler(logger, builder.options)
			if err != nil {
				return nil, err
			}
			for _, job := range builder.jobs {
				s.AddFunc(job.spec, job.name, job.handler)
			}
			return s, nil
		})))

		rt.Features.Set(builder)
		return nil
	}
}
