package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// HostedService 托管服务接口。
// 容器刷新完成后，实现了该接口的单例由 HostedServiceManager 启动。
type HostedService interface {
	// Start 启动服务。该方法可以阻塞执行，直到 context 被取消或发生错误。
	// 框架会在独立的 goroutine 中调用此方法。
	Start(ctx context.Context) error

	// Stop 执行优雅关闭逻辑，必须支持通过 ctx 进行超时控制。
	Stop(ctx context.Context) error
}

// HostedServiceManager 托管服务管理器
type HostedServiceManager struct {
	services []namedService
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

type namedService struct {
	name    string
	service HostedService
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HostedServiceManager{
		logger: logger.WithCategory("hosting"),
	}
}

// Add 添加托管服务，name 用于日志
func (m *HostedServiceManager) Add(name string, service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, namedService{name: name, service: service})
}

// Len 返回已添加的服务数量
func (m *HostedServiceManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// StartAll 并发启动所有托管服务。
// 返回的通道接收 Start 返回的错误（context 取消除外）。
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errCh := make(chan error, len(m.services))

	m.logger.Info("Starting hosted services", logging.Field{Key: "count", Value: len(m.services)})

	for _, s := range m.services {
		m.wg.Add(1)
		go func(s namedService) {
			defer m.wg.Done()

			m.logger.Debug("Starting hosted service", logging.Field{Key: "service", Value: s.name})

			if err := s.service.Start(ctx); err != nil {
				// 区分正常的 context 取消和真正的错误
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					m.logger.Debug("Hosted service stopped (context done)", logging.Field{Key: "service", Value: s.name})
					return
				}
				m.logger.Error("Hosted service failed",
					logging.Field{Key: "service", Value: s.name},
					logging.Field{Key: "error", Value: err})
				errCh <- fmt.Errorf("hosting: service %q: %w", s.name, err)
				return
			}

			m.logger.Debug("Hosted service completed", logging.Field{Key: "service", Value: s.name})
		}(s)
	}

	return errCh
}

// StopAll 按添加顺序的逆序并发停止所有服务，汇总所有错误
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.logger.Info("Stopping hosted services", logging.Field{Key: "count", Value: len(m.services)})

	var (
		wg   sync.WaitGroup
		errs error
		emu  sync.Mutex
	)
	for i := len(m.services) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(s namedService) {
			defer wg.Done()

			if err := s.service.Stop(ctx); err != nil {
				m.logger.Error("Failed to stop hosted service",
					logging.Field{Key: "service", Value: s.name},
					logging.Field{Key: "error", Value: err})
				emu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("hosting: stop %q: %w", s.name, err))
				emu.Unlock()
				return
			}
			m.logger.Debug("Hosted service stopped", logging.Field{Key: "service", Value: s.name})
		}(m.services[i])
	}

	wg.Wait()
	return errs
}

// Wait 等待所有 Start 调用返回
func (m *HostedServiceManager) Wait() {
	m.wg.Wait()
}

// ServiceFunc 把一个阻塞函数适配为托管服务，Stop 时取消其 context。
type ServiceFunc struct {
	fn     func(ctx context.Context) error
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewServiceFunc 创建函数式托管服务
func NewServiceFunc(fn func(ctx context.Context) error) *ServiceFunc {
	return &ServiceFunc{fn: fn}
}

func (s *ServiceFunc) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	return s.fn(ctx)
}

func (s *ServiceFunc) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
