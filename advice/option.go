package advice

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
)

const (
	TransactionManagerBeanName = "transactionManager"
	MetricsAspectBeanName      = "metricsAspect"
	MetricsControllerBeanName  = "metricsController"
	LoggingAspectBeanName      = "loggingAspect"
)

// refArgs 指定了 bean 名称时按名称装配，否则按类型装配
func refArgs(name string) []bean.Option {
	if name == "" {
		return nil
	}
	return []bean.Option{bean.WithArgs(bean.Reference(name))}
}

// WithTransactions 启用事务通知，db 为 *gorm.DB bean 的名称，为空时按类型装配
func WithTransactions(pc aop.Pointcut, db string, opts ...*sql.TxOptions) core.Option {
	return func(rt *core.Runtime) error {
		logger := rt.Logger
		rt.Define(bean.NewDefinition(TransactionManagerBeanName, nil, append(refArgs(db),
			bean.WithFactory(func(db *gorm.DB) *TransactionManager {
				return NewTransactionManager(db, pc, logger, opts...)
			}))...))
		return nil
	}
}

// CacheConfig 缓存切面的装配参数
type CacheConfig struct {
	Store     string       // Cache bean 名称，为空时按类型装配
	Cacheable aop.Pointcut // 必填
	Evict     aop.Pointcut
	Options   CacheOptions
}

// WithCaching 以 name 登记缓存切面
func WithCaching(name string, cfg CacheConfig) core.Option {
	return func(rt *core.Runtime) error {
		if cfg.Cacheable == nil {
			return fmt.Errorf("advice: cache aspect %q requires a cacheable pointcut", name)
		}
		logger := rt.Logger
		rt.Define(bean.NewDefinition(name, nil, append(refArgs(cfg.Store),
			bean.WithFactory(func(cache Cache) *CacheAspect {
				a := NewCacheAspect(cache, cfg.Cacheable, cfg.Options, logger)
				if cfg.Evict != nil {
					a.EvictOn(cfg.Evict)
				}
				return a
			}))...))
		return nil
	}
}

// WithMemoryCache 登记进程内缓存
func WithMemoryCache(name string) core.Option {
	return core.AddSingleton[Cache](name, NewMemoryCache)
}

// WithRedisCache 登记 Redis 缓存，client 为 *redis.Client bean 的名称
func WithRedisCache(name, client, prefix string) core.Option {
	return func(rt *core.Runtime) error {
		rt.Define(bean.NewDefinition(name, nil, append(refArgs(client),
			bean.WithFactory(func(c *redis.Client) *RedisCache {
				return NewRedisCache(c, prefix)
			}))...))
		return nil
	}
}

// WithMongoCache 登记 MongoDB 缓存，client 为 *mongo.Client bean 的名称
func WithMongoCache(name, client, database, collection string) core.Option {
	return func(rt *core.Runtime) error {
		rt.Define(bean.NewDefinition(name, nil, append(refArgs(client),
			bean.WithFactory(func(c *mongo.Client) *MongoCache {
				return NewMongoCache(c.Database(database).Collection(collection))
			}))...))
		return nil
	}
}

// WithMetrics 启用指标通知，并登记 /metrics 路由。reg 为空时使用默认注册表
func WithMetrics(pc aop.Pointcut, namespace string, reg *prometheus.Registry) core.Option {
	return func(rt *core.Runtime) error {
		var (
			registerer prometheus.Registerer = prometheus.DefaultRegisterer
			gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
		)
		if reg != nil {
			registerer, gatherer = reg, reg
		}
		rt.Define(
			bean.NewDefinition(MetricsAspectBeanName, nil, bean.WithFactory(func() (*MetricsAspect, error) {
				return NewMetricsAspect(registerer, namespace, pc)
			})),
			bean.NewDefinition(MetricsControllerBeanName, nil, bean.WithFactory(func() *MetricsController {
				return NewMetricsController(gatherer, "")
			})),
		)
		return nil
	}
}

// WithInvocationLogging 启用调用日志通知
func WithInvocationLogging(pc aop.Pointcut, level logging.LogLevel, slow time.Duration) core.Option {
	return func(rt *core.Runtime) error {
		logger := rt.Logger
		rt.Define(bean.NewDefinition(LoggingAspectBeanName, nil, bean.WithFactory(func() *LoggingAspect {
			return NewLoggingAspect(logger, pc, level, slow)
		})))
		return nil
	}
}
