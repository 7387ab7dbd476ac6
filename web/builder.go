package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/logging"
)

// Controller 简单的控制器接口标记。
// 容器中所有实现了该接口的 bean 在 Host 启动时注册路由。
type Controller interface {
	// MountRoutes 注册路由
	MountRoutes(router gin.IRouter)
}

var controllerType = bean.TypeOf[Controller]()

// Builder Web 主机构建器（基于 Gin）
type Builder struct {
	port        int
	mode        string
	middlewares []gin.HandlerFunc
	routes      []func(gin.IRouter)
	configure   []func(*gin.Engine)
	controllers []controllerRegistration
}

type controllerRegistration struct {
	name string
	ctor any
}

// NewBuilder 创建 Web 构建器
func NewBuilder() *Builder {
	return &Builder{
		port: 8080,
		mode: gin.ReleaseMode,
	}
}

// UsePort 设置端口，0 表示随机端口
func (b *Builder) UsePort(port int) *Builder {
	b.port = port
	return b
}

// SetMode 设置 Gin 模式
func (b *Builder) SetMode(mode string) *Builder {
	b.mode = mode
	return b
}

// Use 使用全局中间件
func (b *Builder) Use(middleware ...gin.HandlerFunc) *Builder {
	b.middlewares = append(b.middlewares, middleware...)
	return b
}

// AddController 以 name 登记控制器 bean。
// ctor 可以是构造函数（参数按类型注入）或控制器实例指针（支持 di tag 字段注入）。
func (b *Builder) AddController(name string, ctor any) *Builder {
	b.controllers = append(b.controllers, controllerRegistration{name: name, ctor: ctor})
	return b
}

// Handle 注册路由
func (b *Builder) Handle(method, path string, handlers ...gin.HandlerFunc) *Builder {
	b.routes = append(b.routes, func(r gin.IRouter) { r.Handle(method, path, handlers...) })
	return b
}

// Get 注册 GET 路由
func (b *Builder) Get(path string, handlers ...gin.HandlerFunc) *Builder {
	return b.Handle(http.MethodGet, path, handlers...)
}

// Post 注册 POST 路由
func (b *Builder) Post(path string, handlers ...gin.HandlerFunc) *Builder {
	return b.Handle(http.MethodPost, path, handlers...)
}

// Put 注册 PUT 路由
func (b *Builder) Put(path string, handlers ...gin.HandlerFunc) *Builder {
	return b.Handle(http.MethodPut, path, handlers...)
}

// Delete 注册 DELETE 路由
func (b *Builder) Delete(path string, handlers ...gin.HandlerFunc) *Builder {
	return b.Handle(http.MethodDelete, path, handlers...)
}

// Configure 直接定制 Gin 引擎（静态文件、模板、NoRoute 等）
func (b *Builder) Configure(fn func(*gin.Engine)) *Builder {
	b.configure = append(b.configure, fn)
	return b
}

// Build 构建 Web 主机
func (b *Builder) Build(logger logging.Logger) *Host {
	if logger == nil {
		logger = logging.NewNop()
	}
	gin.SetMode(b.mode)

	engine := gin.New()
	// 默认中间件：恢复 panic
	engine.Use(gin.Recovery())
	engine.Use(b.middlewares...)
	for _, fn := range b.configure {
		fn(engine)
	}
	for _, route := range b.routes {
		route(engine)
	}

	return &Host{
		port:   b.port,
		engine: engine,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", b.port),
			Handler: engine,
		},
		logger: logger.WithCategory("web"),
	}
}

// Host Web 主机，作为托管服务随容器启动
type Host struct {
	port    int
	engine  *gin.Engine
	server  *http.Server
	logger  logging.Logger
	factory bean.ListableBeanFactory

	mapOnce sync.Once
	mapErr  error

	mu   sync.RWMutex
	addr string
}

// SetBeanFactory 接收容器，用于解析控制器
func (h *Host) SetBeanFactory(factory bean.BeanFactory) {
	if lf, ok := factory.(bean.ListableBeanFactory); ok {
		h.factory = lf
	}
}

// Engine 获取 Gin 引擎（用于高级定制）
func (h *Host) Engine() *gin.Engine {
	return h.engine
}

// Handler 注册控制器路由后返回 http.Handler
func (h *Host) Handler() (http.Handler, error) {
	if err := h.mapControllers(); err != nil {
		return nil, err
	}
	return h.engine, nil
}

// Address 获取监听地址 (e.g., "[::]:50234")
// 仅在 Start 后有效
func (h *Host) Address() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.addr
}

// Start 启动 Web 主机
// 注意：此方法会阻塞，直到服务退出。框架会在独立的 Goroutine 中调用它。
func (h *Host) Start(ctx context.Context) error {
	// 1. 延迟解析并注册控制器路由
	if err := h.mapControllers(); err != nil {
		return err
	}

	// 2. 监听端口 (同步，确保端口可用)
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", h.server.Addr, err)
	}

	h.mu.Lock()
	h.addr = ln.Addr().String()
	h.mu.Unlock()

	h.logger.Info("Web host started", logging.Field{Key: "address", Value: ln.Addr().String()})

	// 3. 启动服务 (阻塞)
	// Serve 会一直阻塞直到 Shutdown 被调用或发生错误
	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("Web host error", logging.Field{Key: "error", Value: err})
		return err
	}
	return nil
}

// Stop 停止 Web 主机
func (h *Host) Stop(ctx context.Context) error {
	h.logger.Info("Stopping web host")

	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error("Failed to shutdown web host gracefully", logging.Field{Key: "error", Value: err})
		return err
	}

	h.logger.Info("Web host stopped")
	return nil
}

// mapControllers 从容器解析控制器并注册路由，只执行一次
func (h *Host) mapControllers() error {
	h.mapOnce.Do(func() {
		if h.factory == nil {
			return
		}
		for _, name := range h.factory.BeanNamesForType(controllerType) {
			instance, err := h.factory.GetBean(name)
			if err != nil {
				h.mapErr = fmt.Errorf("web: failed to resolve controller %q: %w", name, err)
				return
			}
			ctrl, ok := instance.(Controller)
			if !ok {
				h.mapErr = fmt.Errorf("web: bean %q (%T) does not implement web.Controller", name, instance)
				return
			}

			ctrl.MountRoutes(h.engine)
			h.logger.Debug("Mapped controller routes", logging.Field{Key: "controller", Value: name})
		}
	})
	return h.mapErr
}
