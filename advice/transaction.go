// Package advice 提供可直接装配到容器的通知：事务、缓存、指标与调用日志。
// 每种通知都是一个切面 bean，容器刷新时自动发现并参与代理。
package advice

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/logging"
)

type txKey struct{}

// WithTx 把事务放入 context
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom 取出 context 中的事务
func TxFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok
}

// DB 返回 context 中的事务，没有时返回绑定了 ctx 的 db。
// 被事务通知包裹的方法应通过它访问数据库。
func DB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// TransactionManager 事务切面，命中的方法在事务中执行。
// 方法必须接收 context.Context 并返回 error；返回错误或 panic 时回滚。
// 已在事务中的调用直接加入外层事务。
type TransactionManager struct {
	db       *gorm.DB
	pointcut aop.Pointcut
	options  *sql.TxOptions
	logger   logging.Logger
}

var _ aop.Aspect = (*TransactionManager)(nil)

// NewTransactionManager 创建事务切面
func NewTransactionManager(db *gorm.DB, pc aop.Pointcut, logger logging.Logger, opts ...*sql.TxOptions) *TransactionManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &TransactionManager{
		db:       db,
		pointcut: pc,
		logger:   logger.WithCategory("transaction"),
	}
	if len(opts) > 0 {
		m.options = opts[0]
	}
	return m
}

func (m *TransactionManager) Advisors() []*aop.Advisor {
	return []*aop.Advisor{aop.NewAround(m.pointcut, m.invoke).Named("transactional")}
}

func (m *TransactionManager) invoke(inv *aop.Invocation) ([]any, error) {
	ctx := inv.Context()
	if _, ok := TxFrom(ctx); ok {
		return inv.Proceed()
	}
	if !inv.Method().ReturnsError() {
		return nil, fmt.Errorf("advice: transactional method %s must return error", inv.Method())
	}

	var results []any
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !inv.SetContext(WithTx(ctx, tx)) {
			return fmt.Errorf("advice: transactional method %s has no context.Context parameter", inv.Method())
		}
		var err error
		results, err = inv.Proceed()
		return err
	}, m.options)

	if err != nil {
		m.logger.Debug("Transaction rolled back",
			logging.Field{Key: "method", Value: inv.Method().String()},
			logging.Field{Key: "error", Value: err})
		return results, err
	}
	m.logger.Trace("Transaction committed", logging.Field{Key: "method", Value: inv.Method().String()})
	return results, nil
}
