package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/logging"
)

// placeholderPattern 匹配 ${key} 与 ${key:default}
var placeholderPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// PlaceholderConfigurer 在创建任何普通 bean 之前，把定义中字符串字面量里的
// ${key:default} 替换为环境属性。属性缺失且没有默认值时刷新失败。
type PlaceholderConfigurer struct {
	env    Environment
	logger logging.Logger
}

var _ bean.FactoryPostProcessor = (*PlaceholderConfigurer)(nil)

// NewPlaceholderConfigurer 创建占位符解析器
func NewPlaceholderConfigurer(env Environment, logger logging.Logger) *PlaceholderConfigurer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PlaceholderConfigurer{env: env, logger: logger}
}

func (p *PlaceholderConfigurer) PostProcessBeanFactory(factory bean.ConfigurableBeanFactory) error {
	for _, name := range factory.BeanNames() {
		def, err := factory.Definition(name)
		if err != nil {
			return err
		}

		for i, prop := range def.Properties {
			v, err := p.resolveValue(prop.Value)
			if err != nil {
				return fmt.Errorf("core: bean %q property %s: %w", name, prop.Name, err)
			}
			def.Properties[i].Value = v
		}
		for i, arg := range def.ConstructorArgs {
			v, err := p.resolveValue(arg)
			if err != nil {
				return fmt.Errorf("core: bean %q constructor argument %d: %w", name, i, err)
			}
			def.ConstructorArgs[i] = v
		}
	}
	return nil
}

func (p *PlaceholderConfigurer) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return p.Resolve(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := p.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := p.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// Resolve 替换 s 中的所有占位符
func (p *PlaceholderConfigurer) Resolve(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := placeholderPattern.FindStringSubmatch(m)
		key := strings.TrimSpace(groups[1])
		if v, ok := p.env.Property(key); ok {
			return v
		}
		// 有冒号即有默认值，允许为空
		if strings.Contains(m, ":") {
			return groups[2]
		}
		missing = append(missing, key)
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholder(s) %s", strings.Join(missing, ", "))
	}
	if out != s {
		p.logger.Trace("Resolved placeholder", logging.Field{Key: "value", Value: s})
	}
	return out, nil
}
