package database_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/database"
	"github.com/gocrud/ioc/logging"
)

type User struct {
	gorm.Model
	Name string
}

type MockDBService struct {
	Default *gorm.DB `di:""`
	Master  *gorm.DB `di:"database.master"`
	Slave   *gorm.DB `di:"database.slave,optional"`
}

// DBConfig 模拟用户定义的配置结构
type DBConfig struct {
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
}

func TestDatabaseConfiguration(t *testing.T) {
	dir := t.TempDir()
	builder := core.NewApplicationBuilder()

	// 1. 配置内存配置源
	builder.ConfigureConfiguration(func(cb *config.ConfigurationBuilder) {
		cb.AddInMemory(map[string]any{
			"db": map[string]any{
				"master": map[string]any{
					"dsn":            filepath.Join(dir, "master.db"),
					"max_open_conns": 5,
				},
			},
		})
	})

	// 2. 配置 Database (演示 config.Load 的使用)
	builder.Configure(func(rt *core.Runtime) error {
		dbConf, err := config.Load[DBConfig](rt.Configuration, "db.master")
		if err != nil {
			return err
		}
		return database.New(
			database.WithSQLite(database.DefaultName, filepath.Join(dir, "default.db")),
			database.WithSQLite("master", dbConf.DSN, func(o *database.DatabaseOptions) {
				o.MaxOpenConns = dbConf.MaxOpenConns
				o.AutoMigrate = []any{&User{}}
			}),
		)(rt)
	})

	// 注册依赖数据库的服务
	builder.Configure(core.AddBean[*MockDBService]("service"))

	app, err := builder.Build()
	require.NoError(t, err)

	c := app.Context()
	require.NoError(t, c.Refresh())

	svc := bean.MustGet[*MockDBService](c, "service")
	require.NotNil(t, svc.Master)
	assert.Nil(t, svc.Slave)
	assert.Same(t, bean.MustGet[*gorm.DB](c, database.BeanName(database.DefaultName)), svc.Default)

	// Verify config was applied
	sqlDB, err := svc.Master.DB()
	require.NoError(t, err)
	assert.Equal(t, 5, sqlDB.Stats().MaxOpenConnections)

	// Test DB interaction
	require.NoError(t, svc.Master.Create(&User{Name: "test"}).Error)
	var count int64
	require.NoError(t, svc.Master.Model(&User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	factory := bean.MustGet[*database.DatabaseFactory](c, database.FactoryBeanName)
	assert.Equal(t, []string{"default", "master"}, factory.Names())

	// 关闭容器时关闭连接
	require.NoError(t, c.Close())
	assert.Error(t, sqlDB.Ping())
}

func TestDatabaseBuilder_Errors(t *testing.T) {
	logger := logging.NewNop()
	builder := database.NewBuilder()

	// Missing dialector
	builder.Add("invalid", nil, nil)

	// Duplicate
	dsn := filepath.Join(t.TempDir(), "dup.db")
	builder.Add("dup", sqlite.Open(dsn), nil)
	builder.Add("dup", sqlite.Open(dsn), nil)

	_, err := builder.Build(logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialector is required")
	assert.Contains(t, err.Error(), "already configured")
	assert.Equal(t, []string{"dup"}, builder.Names())

	// 配置错误在构建应用时返回
	_, err = core.NewApplicationBuilder().
		Configure(database.New(database.WithDatabase("broken", nil))).
		Build()
	assert.Error(t, err)
}

func TestDatabaseFactory_Get(t *testing.T) {
	factory := database.NewDatabaseFactory(nil)
	_, err := factory.Get("missing")
	assert.Error(t, err)
}
