package advice

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gocrud/ioc/aop"
)

// MetricsAspect 记录命中方法的调用次数与耗时。
// 标签：type 为目标类型，method 为方法名，status 为 ok 或 error。
type MetricsAspect struct {
	pointcut aop.Pointcut
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ aop.Aspect = (*MetricsAspect)(nil)

// NewMetricsAspect 创建指标切面并在 reg 上注册指标。
// 同名指标已注册时复用已有的收集器。
func NewMetricsAspect(reg prometheus.Registerer, namespace string, pc aop.Pointcut) (*MetricsAspect, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "method_calls_total",
			Help:      "Total number of intercepted method calls",
		},
		[]string{"type", "method", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "method_duration_seconds",
			Help:      "Intercepted method duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type", "method"},
	)

	var err error
	if calls, err = register(reg, calls); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &MetricsAspect{pointcut: pc, calls: calls, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (a *MetricsAspect) Advisors() []*aop.Advisor {
	return []*aop.Advisor{aop.NewAround(a.pointcut, a.observe).Named("metrics")}
}

// Calls 返回调用计数器
func (a *MetricsAspect) Calls() *prometheus.CounterVec {
	return a.calls
}

// Duration 返回耗时直方图
func (a *MetricsAspect) Duration() *prometheus.HistogramVec {
	return a.duration
}

func (a *MetricsAspect) observe(inv *aop.Invocation) ([]any, error) {
	m := inv.Method()
	typeName := aop.TypeName(m.Owner)
	start := time.Now()

	results, err := inv.Proceed()

	status := "ok"
	if err != nil {
		status = "error"
	}
	a.calls.WithLabelValues(typeName, m.Name, status).Inc()
	a.duration.WithLabelValues(typeName, m.Name).Observe(time.Since(start).Seconds())
	return results, err
}

// MetricsController 在 /metrics 暴露指标，容器中有 web 主机时自动挂载
type MetricsController struct {
	gatherer prometheus.Gatherer
	path     string
}

// NewMetricsController 创建指标路由
func NewMetricsController(gatherer prometheus.Gatherer, path string) *MetricsController {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if path == "" {
		path = "/metrics"
	}
	return &MetricsController{gatherer: gatherer, path: path}
}

func (c *MetricsController) MountRoutes(r gin.IRouter) {
	r.GET(c.path, gin.WrapH(promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})))
}
