package scheduling

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/logging"
)

// Job 由容器中的单例实现，Scheduler 在其初始化后按 Spec 登记。
// 每次触发都通过容器获取最终实例，因此切面同样作用于 Run。
type Job interface {
	Spec() string
	Run(ctx context.Context) error
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// jobDefinition 通过 Option 登记的函数任务，参数在 Start 时按类型从容器解析
type jobDefinition struct {
	spec    string
	name    string
	handler any
}

// Scheduler Cron 定时任务调度器。
// 它既是后置处理器（发现 Job bean），也是托管服务（随容器启动与停止）。
type Scheduler struct {
	cron    *cron.Cron
	logger  logging.Logger
	factory bean.ListableBeanFactory

	mu      sync.RWMutex
	jobs    map[string]cron.EntryID
	runners map[string]func()
	pending []jobDefinition
	runCtx  context.Context
	started bool
}

// Options 调度器配置，对应配置节 scheduling
type Options struct {
	// Location 时区，默认 UTC
	Location string `json:"location"`
	// EnableSeconds 启用秒级精度（默认分钟级）
	EnableSeconds bool `json:"seconds"`
	// EnableCronLogger 启用 cron 库的内部调度日志
	EnableCronLogger bool `json:"cron_logger"`
}

// NewScheduler 创建调度器
func NewScheduler(logger logging.Logger, opts Options) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithCategory("scheduling")

	cronOpts := []cron.Option{}
	if opts.EnableCronLogger {
		cronOpts = append(cronOpts, cron.WithLogger(newCronLogger(logger)))
	}
	cronOpts = append(cronOpts, cron.WithChain(cron.Recover(newCronLogger(logger))))
	if opts.EnableSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}
	if opts.Location != "" {
		loc, err := time.LoadLocation(opts.Location)
		if err != nil {
			return nil, fmt.Errorf("scheduling: invalid location %q: %w", opts.Location, err)
		}
		cronOpts = append(cronOpts, cron.WithLocation(loc))
	}

	return &Scheduler{
		cron:    cron.New(cronOpts...),
		logger:  logger,
		jobs:    make(map[string]cron.EntryID),
		runners: make(map[string]func()),
		runCtx:  context.Background(),
	}, nil
}

// SetBeanFactory 接收容器，用于解析 Job bean 与函数任务参数
func (s *Scheduler) SetBeanFactory(factory bean.BeanFactory) {
	if lf, ok := factory.(bean.ListableBeanFactory); ok {
		s.factory = lf
	}
}

// AddFunc 登记函数任务，handler 的参数在 Start 时按类型从容器解析
func (s *Scheduler) AddFunc(spec, name string, handler any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, jobDefinition{spec: spec, name: name, handler: handler})
}

func (s *Scheduler) PostProcessBeforeInitialization(b any, name string) (any, error) {
	return b, nil
}

// PostProcessAfterInitialization 登记实现了 Job 的单例
func (s *Scheduler) PostProcessAfterInitialization(b any, name string) (any, error) {
	job, ok := b.(Job)
	if !ok || s.factory == nil {
		return b, nil
	}
	if singleton, err := s.factory.IsSingleton(name); err != nil || !singleton {
		s.logger.Warn("Ignoring non-singleton job bean", logging.Field{Key: "bean", Value: name})
		return b, nil
	}

	factory := s.factory
	err := s.addJob(job.Spec(), name, func(ctx context.Context) error {
		inst, err := factory.GetBean(name)
		if err != nil {
			return err
		}
		return inst.(Job).Run(ctx)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// addJob 添加定时任务
// spec: cron 表达式，如 "*/5 * * * *" (每5分钟) 或 "0 2 * * *" (每天凌晨2点)
func (s *Scheduler) addJob(spec, name string, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduling: job %q already registered", name)
	}

	runner := func() {
		s.mu.RLock()
		ctx := s.runCtx
		s.mu.RUnlock()

		s.logger.Debug("Cron job started", logging.Field{Key: "job", Value: name})
		if err := job(ctx); err != nil {
			s.logger.Error("Cron job failed",
				logging.Field{Key: "job", Value: name},
				logging.Field{Key: "error", Value: err})
			return
		}
		s.logger.Debug("Cron job completed", logging.Field{Key: "job", Value: name})
	}

	entryID, err := s.cron.AddFunc(spec, runner)
	if err != nil {
		return fmt.Errorf("scheduling: failed to add job %q: %w", name, err)
	}

	s.jobs[name] = entryID
	s.runners[name] = runner
	s.logger.Info("Cron job registered",
		logging.Field{Key: "job", Value: name},
		logging.Field{Key: "spec", Value: spec})
	return nil
}

// Remove 移除定时任务
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.runners, name)
		s.logger.Info("Cron job removed", logging.Field{Key: "job", Value: name})
	}
}

// Jobs 返回已登记的任务名称
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Next 返回任务下一次触发时间
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// RunNow 立即同步执行一次任务
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	runner, ok := s.runners[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduling: job %q not found", name)
	}
	runner()
	return nil
}

// Start 登记函数任务并启动调度，不阻塞
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	pending := s.pending
	s.pending = nil
	s.runCtx = ctx
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Scheduler starting", logging.Field{Key: "pending", Value: len(pending)})

	for _, def := range pending {
		job, err := s.wrapHandler(def)
		if err != nil {
			return err
		}
		if err := s.addJob(def.spec, def.name, job); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop 停止调度并等待运行中的任务结束或 ctx 超时
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("Scheduler stopping")
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wrapHandler 包装函数任务：context.Context 参数接收任务 ctx，其余参数按类型从容器获取
func (s *Scheduler) wrapHandler(def jobDefinition) (func(ctx context.Context) error, error) {
	if h, ok := def.handler.(func()); ok {
		return func(context.Context) error {
			h()
			return nil
		}, nil
	}

	fn := reflect.ValueOf(def.handler)
	fnType := fn.Type()
	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("scheduling: job %q handler must be a function, got %v", def.name, fnType.Kind())
	}
	if n := fnType.NumOut(); n > 1 || (n == 1 && fnType.Out(0) != errorType) {
		return nil, fmt.Errorf("scheduling: job %q handler may only return error", def.name)
	}
	needsFactory := false
	for i := 0; i < fnType.NumIn(); i++ {
		if fnType.In(i) != contextType {
			needsFactory = true
		}
	}
	if needsFactory && s.factory == nil {
		return nil, fmt.Errorf("scheduling: bean factory not available but job %q requires it", def.name)
	}

	return func(ctx context.Context) error {
		args := make([]reflect.Value, fnType.NumIn())
		for i := range args {
			paramType := fnType.In(i)
			if paramType == contextType {
				args[i] = reflect.ValueOf(ctx)
				continue
			}
			inst, err := s.resolve(paramType)
			if err != nil {
				return fmt.Errorf("parameter %d (%v): %w", i, paramType, err)
			}
			args[i] = reflect.ValueOf(inst)
		}
		out := fn.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}, nil
}

// resolve 按类型获取唯一的 bean
func (s *Scheduler) resolve(typ reflect.Type) (any, error) {
	names := s.factory.BeanNamesForType(typ)
	switch len(names) {
	case 0:
		return nil, &bean.NotFoundError{Type: typ}
	case 1:
		return s.factory.GetBean(names[0])
	default:
		return nil, &bean.AmbiguousBeanError{Type: typ, Candidates: names}
	}
}

// cronLogger 适配器：将框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Field{Key: "error", Value: err})
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprintf("%v", keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
