package database

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/logging"
)

// DatabaseOptions 数据库配置选项
type DatabaseOptions struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	AutoMigrate  []any // 需要自动迁移的模型
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *DatabaseOptions {
	return &DatabaseOptions{
		Name:         name,
		Dialector:    dialector,
		GormConfig:   &gorm.Config{},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
		AutoMigrate:  make([]any, 0),
	}
}

// Validate 验证配置
func (o *DatabaseOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if o.Dialector == nil {
		return fmt.Errorf("database dialector is required")
	}
	return nil
}

// DatabaseFactory 数据库连接工厂，连接在首次 Get 时打开，Destroy 时关闭
type DatabaseFactory struct {
	options map[string]DatabaseOptions
	dbs     map[string]*gorm.DB
	logger  logging.Logger
	mu      sync.Mutex
}

// NewDatabaseFactory 创建数据库工厂
func NewDatabaseFactory(logger logging.Logger) *DatabaseFactory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DatabaseFactory{
		options: make(map[string]DatabaseOptions),
		dbs:     make(map[string]*gorm.DB),
		logger:  logger,
	}
}

// Register 登记数据库配置
func (f *DatabaseFactory) Register(opts DatabaseOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.options[opts.Name]; exists {
		return fmt.Errorf("database '%s' already registered", opts.Name)
	}
	f.options[opts.Name] = opts
	return nil
}

// Names 返回已登记的数据库名称
func (f *DatabaseFactory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.options))
	for name := range f.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get 返回指定名称的连接，首次调用时打开
func (f *DatabaseFactory) Get(name string) (*gorm.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if db, ok := f.dbs[name]; ok {
		return db, nil
	}
	opts, ok := f.options[name]
	if !ok {
		return nil, fmt.Errorf("database '%s' not found", name)
	}

	db, err := open(opts)
	if err != nil {
		return nil, err
	}
	f.dbs[name] = db
	f.logger.Info("Database opened",
		logging.Field{Key: "name", Value: name},
		logging.Field{Key: "dialector", Value: opts.Dialector.Name()})
	return db, nil
}

func open(opts DatabaseOptions) (*gorm.DB, error) {
	// 打开数据库连接
	db, err := gorm.Open(opts.Dialector, opts.GormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", opts.Name, err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for '%s': %w", opts.Name, err)
	}

	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	// 执行自动迁移
	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate failed for '%s': %w", opts.Name, err)
		}
	}
	return db, nil
}

// Destroy 关闭所有已打开的连接，容器关闭时调用
func (f *DatabaseFactory) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs error
	for name, db := range f.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			// 如果获取不到 sqlDB，可能连接已经有问题，记录错误但继续
			errs = multierr.Append(errs, fmt.Errorf("failed to get sql.DB for '%s': %w", name, err))
			continue
		}
		if err := sqlDB.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close database '%s': %w", name, err))
		}
	}

	f.dbs = make(map[string]*gorm.DB)
	return errs
}
