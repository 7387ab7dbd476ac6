package ioc

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/advice"
	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/database"
	"github.com/gocrud/ioc/web"
)

type AppInfo interface {
	GetAppName() string
	HasDB() bool
}

// TestService 模拟业务服务
type TestService struct {
	DB      *gorm.DB `di:""`
	AppName string
}

func (s *TestService) GetAppName() string {
	return s.AppName
}

func (s *TestService) HasDB() bool {
	return s.DB != nil
}

type appInfoProxy struct{ p *aop.Proxy }

func (a *appInfoProxy) GetAppName() string {
	return aop.Call1[string](a.p, "GetAppName")
}

func (a *appInfoProxy) HasDB() bool {
	return aop.Call1[bool](a.p, "HasDB")
}

// TestController 模拟控制器
type TestController struct {
	Info AppInfo
}

// NewTestController 使用构造函数注入
func NewTestController(info AppInfo) *TestController {
	return &TestController{Info: info}
}

func (c *TestController) MountRoutes(r gin.IRouter) {
	r.GET("/ping", func(ctx *gin.Context) {
		name := c.Info.GetAppName()
		// 验证数据库注入
		if !c.Info.HasDB() {
			name += "-nodb"
		}
		ctx.String(http.StatusOK, "pong: "+name)
	})
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// 测试配置、数据库、Web 与指标的完整装配
func TestIntegration(t *testing.T) {
	t.Setenv("TEST_APP_NAME", "IntegrationTest")

	app, err := NewApplicationBuilder().
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
			b.AddEnvironmentVariables("TEST_")
		}).
		Configure(
			database.New(database.WithSQLite(database.DefaultName, filepath.Join(t.TempDir(), "app.db"))),
			web.New(web.WithPort(0), web.WithController("testController", NewTestController)),
			core.WithProxy(func(p *aop.Proxy) AppInfo { return &appInfoProxy{p: p} }),
			advice.WithMetrics(aop.Methods(aop.Within[AppInfo](), "GetAppName"), "integration", prometheus.NewRegistry()),
			core.AddBean[*TestService]("testService", bean.WithProperty("AppName", "${app.name:unknown}")),
		).
		Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.RunAsync(ctx) }()

	var host *web.Host
	require.Eventually(t, func() bool {
		if app.Context().State() != core.StateActive {
			return false
		}
		h, err := bean.Get[*web.Host](app.Context(), web.HostBeanName)
		if err != nil || h.Address() == "" {
			return false
		}
		host = h
		return true
	}, 5*time.Second, 20*time.Millisecond)

	_, port, err := net.SplitHostPort(host.Address())
	require.NoError(t, err)
	base := "http://127.0.0.1:" + port

	code, body := get(t, base+"/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong: IntegrationTest", body)

	code, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `integration_method_calls_total{method="GetAppName",status="ok",type="ioc.TestService"} 1`)

	require.NoError(t, app.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
	assert.Equal(t, core.StateClosed, app.Context().State())
}

// TestWorker 用于托管服务测试
type TestWorker struct {
	Started chan struct{}
	Stopped chan struct{}
	StopCh  chan struct{}
}

func (w *TestWorker) Start(ctx context.Context) error {
	close(w.Started)
	<-w.StopCh // 模拟阻塞直到 Stop 被调用
	return nil
}

func (w *TestWorker) Stop(ctx context.Context) error {
	close(w.StopCh)
	// 模拟等待清理
	time.Sleep(10 * time.Millisecond)
	close(w.Stopped)
	return nil
}

// 测试托管服务随应用启动与停止
func TestHostedService(t *testing.T) {
	worker := &TestWorker{
		Started: make(chan struct{}),
		Stopped: make(chan struct{}),
		StopCh:  make(chan struct{}),
	}

	app, err := NewApplicationBuilder().
		Configure(core.WithHostedService("worker", worker)).
		Build()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.RunAsync(context.Background()) }()

	select {
	case <-worker.Started:
	case <-time.After(2 * time.Second):
		t.Fatal("Worker should be started")
	}

	require.NoError(t, app.Stop(context.Background()))
	select {
	case <-worker.Stopped:
	case <-time.After(2 * time.Second):
		t.Error("Worker should be stopped")
	}
	assert.NoError(t, <-done)
}
