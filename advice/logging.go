package advice

import (
	"time"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/logging"
)

// LoggingAspect 记录命中方法的调用、耗时与错误
type LoggingAspect struct {
	pointcut aop.Pointcut
	logger   logging.Logger
	level    logging.LogLevel
	slow     time.Duration
}

var _ aop.Aspect = (*LoggingAspect)(nil)

// NewLoggingAspect 创建日志切面，成功调用以 level 记录，
// 耗时超过 slow（大于 0 时）升为 Warn，失败以 Error 记录
func NewLoggingAspect(logger logging.Logger, pc aop.Pointcut, level logging.LogLevel, slow time.Duration) *LoggingAspect {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LoggingAspect{
		pointcut: pc,
		logger:   logger.WithCategory("invocation"),
		level:    level,
		slow:     slow,
	}
}

func (a *LoggingAspect) Advisors() []*aop.Advisor {
	return []*aop.Advisor{aop.NewAround(a.pointcut, a.log).Named("logging")}
}

func (a *LoggingAspect) log(inv *aop.Invocation) ([]any, error) {
	start := time.Now()
	results, err := inv.Proceed()
	elapsed := time.Since(start)

	fields := []logging.Field{
		{Key: "method", Value: inv.Method().String()},
		{Key: "duration", Value: elapsed},
	}
	switch {
	case err != nil:
		a.logger.Error("Method failed", append(fields, logging.Field{Key: "error", Value: err})...)
	case a.slow > 0 && elapsed >= a.slow:
		a.logger.Warn("Slow method", fields...)
	default:
		a.logger.Log(a.level, "Method returned", fields...)
	}
	return results, err
}
