package config

import (
	"strings"
	"sync"
)

// pathCache 配置键到路径片段的缓存
type pathCache struct {
	segments sync.Map
}

// split 按 : 或 . 切分键，忽略空片段（"a::b" 与 "a.b" 等价）
func (c *pathCache) split(key string) []string {
	if v, ok := c.segments.Load(key); ok {
		return v.([]string)
	}

	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == ':' || r == '.'
	})
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	v, _ := c.segments.LoadOrStore(key, parts)
	return v.([]string)
}

var paths = &pathCache{}
