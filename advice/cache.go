package advice

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/logging"
)

// Cache 缓存存储
type Cache interface {
	// Get 返回缓存内容，未命中时 ok 为 false
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// KeyFunc 由调用生成缓存键
type KeyFunc func(inv *aop.Invocation) (string, error)

// DefaultKey 以目标类型、方法名与参数（不含 context）生成缓存键，
// 形如 "service.UserService.Find:[1]"
func DefaultKey(inv *aop.Invocation) (string, error) {
	args := make([]any, 0, len(inv.Arguments()))
	for _, a := range inv.Arguments() {
		if _, ok := a.(context.Context); ok {
			continue
		}
		args = append(args, a)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("advice: cache key for %s: %w", inv.Method(), err)
	}
	return inv.Method().String() + ":" + string(data), nil
}

// KeyArg 以第 i 个参数作为缓存键，可用于让查询与失效使用相同的键
func KeyArg(i int) KeyFunc {
	return func(inv *aop.Invocation) (string, error) {
		args := inv.Arguments()
		if i < 0 || i >= len(args) {
			return "", fmt.Errorf("advice: %s has no argument %d", inv.Method(), i)
		}
		return fmt.Sprint(args[i]), nil
	}
}

// CacheOptions 缓存切面选项
type CacheOptions struct {
	Name string        // 键前缀
	TTL  time.Duration // 0 表示不过期
	Key  KeyFunc       // 默认 DefaultKey
}

// CacheAspect 缓存切面。Cacheable 命中的方法先查缓存，未命中才调用并写入结果；
// Evict 命中的方法成功返回后删除对应的键。存储出错时只记录日志，不影响调用。
type CacheAspect struct {
	cache     Cache
	cacheable aop.Pointcut
	evict     aop.Pointcut
	options   CacheOptions
	logger    logging.Logger
}

var _ aop.Aspect = (*CacheAspect)(nil)

// NewCacheAspect 创建缓存切面
func NewCacheAspect(cache Cache, cacheable aop.Pointcut, options CacheOptions, logger logging.Logger) *CacheAspect {
	if options.Key == nil {
		options.Key = DefaultKey
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CacheAspect{
		cache:     cache,
		cacheable: cacheable,
		options:   options,
		logger:    logger.WithCategory("cache"),
	}
}

// EvictOn 设置失效切点
func (a *CacheAspect) EvictOn(pc aop.Pointcut) *CacheAspect {
	a.evict = pc
	return a
}

func (a *CacheAspect) Advisors() []*aop.Advisor {
	advisors := []*aop.Advisor{aop.NewAround(a.cacheable, a.lookup).Named("cacheable")}
	if a.evict != nil {
		advisors = append(advisors, aop.NewAfterReturning(a.evict, a.remove).Named("cache-evict"))
	}
	return advisors
}

func (a *CacheAspect) key(inv *aop.Invocation) (string, error) {
	key, err := a.options.Key(inv)
	if err != nil {
		return "", err
	}
	if a.options.Name != "" {
		key = a.options.Name + ":" + key
	}
	return key, nil
}

func (a *CacheAspect) lookup(inv *aop.Invocation) ([]any, error) {
	ctx := inv.Context()
	key, err := a.key(inv)
	if err != nil {
		return nil, err
	}

	data, ok, err := a.cache.Get(ctx, key)
	switch {
	case err != nil:
		a.logger.Warn("Cache read failed",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err})
	case ok:
		results, err := decodeResults(inv.Method(), data)
		if err == nil {
			return results, nil
		}
		a.logger.Warn("Cached value is unreadable",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err})
	}

	results, err := inv.Proceed()
	if err != nil {
		return results, err
	}

	data, err = encodeResults(inv.Method(), results)
	if err == nil {
		err = a.cache.Set(ctx, key, data, a.options.TTL)
	}
	if err != nil {
		a.logger.Warn("Cache write failed",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err})
	}
	return results, nil
}

func (a *CacheAspect) remove(inv *aop.Invocation, _ []any) {
	key, err := a.key(inv)
	if err == nil {
		err = a.cache.Delete(inv.Context(), key)
	}
	if err != nil {
		a.logger.Warn("Cache evict failed",
			logging.Field{Key: "method", Value: inv.Method().String()},
			logging.Field{Key: "error", Value: err})
	}
}

// valueCount 除 error 外的返回值个数
func valueCount(m aop.Method) int {
	n := m.Type.NumOut()
	if m.ReturnsError() {
		n--
	}
	return n
}

func encodeResults(m aop.Method, results []any) ([]byte, error) {
	n := valueCount(m)
	if len(results) < n {
		return nil, fmt.Errorf("advice: %s returned %d value(s)", m, len(results))
	}
	return json.Marshal(results[:n])
}

// decodeResults 按方法签名还原返回值，error 位置为 nil
func decodeResults(m aop.Method, data []byte) ([]any, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	n := valueCount(m)
	if len(raw) != n {
		return nil, fmt.Errorf("advice: cached %d value(s) for %s", len(raw), m)
	}

	out := make([]any, m.Type.NumOut())
	for i := 0; i < n; i++ {
		v := reflect.New(m.Type.Out(i))
		if err := json.Unmarshal(raw[i], v.Interface()); err != nil {
			return nil, err
		}
		out[i] = v.Elem().Interface()
	}
	return out, nil
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache 进程内缓存
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.data, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Clear 删除前缀匹配的键，前缀为空时清空
func (c *MemoryCache) Clear(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Len 返回条目数（含未清理的过期条目）
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
