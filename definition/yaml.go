package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gocrud/ioc/bean"
)

var validate = validator.New()

// document YAML 文档结构
//
//	beans:
//	  - name: userRepository
//	    type: UserRepository
//	    properties:
//	      - name: DSN
//	        value: ${db.dsn}
//	  - name: userService
//	    type: UserService
//	    args:
//	      - ref: userRepository
type document struct {
	Beans []beanSpec `yaml:"beans" validate:"dive"`
}

type beanSpec struct {
	Name          string      `yaml:"name" validate:"required"`
	Type          string      `yaml:"type" validate:"required_without_all=Factory FactoryBean"`
	Scope         string      `yaml:"scope" validate:"omitempty,oneof=singleton prototype"`
	Lazy          bool        `yaml:"lazy"`
	Primary       bool        `yaml:"primary"`
	DependsOn     []string    `yaml:"depends_on" validate:"dive,required"`
	InitMethod    string      `yaml:"init_method"`
	DestroyMethod string      `yaml:"destroy_method"`
	Factory       string      `yaml:"factory" validate:"excluded_with=FactoryBean"`
	FactoryBean   string      `yaml:"factory_bean" validate:"required_with=FactoryMethod"`
	FactoryMethod string      `yaml:"factory_method" validate:"required_with=FactoryBean"`
	Args          []valueSpec `yaml:"args" validate:"dive"`
	Properties    []valueSpec `yaml:"properties" validate:"dive"`
}

// valueSpec 字面量或引用，二者只能有一个
type valueSpec struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
	Ref   string `yaml:"ref" validate:"excluded_with=Value"`
}

// YAMLSource 从 YAML 文件或字节加载 bean 定义，每次刷新重新解析
type YAMLSource struct {
	registry *TypeRegistry
	path     string
	data     []byte
	optional bool
}

// NewYAMLFile 创建文件来源，optional 为 true 时文件不存在不报错
func NewYAMLFile(registry *TypeRegistry, path string, optional ...bool) *YAMLSource {
	return &YAMLSource{
		registry: registry,
		path:     path,
		optional: len(optional) > 0 && optional[0],
	}
}

// NewYAML 从内存中的文档创建来源
func NewYAML(registry *TypeRegistry, data []byte) *YAMLSource {
	return &YAMLSource{registry: registry, data: data}
}

// Definitions 解析并校验文档，返回定义列表
func (s *YAMLSource) Definitions() ([]*bean.Definition, error) {
	data := s.data
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			if s.optional && errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("definition: failed to read %s: %w", s.path, err)
		}
		data = b
	}
	defs, err := Parse(s.registry, bytes.NewReader(data))
	if err != nil && s.path != "" {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return defs, err
}

// Parse 解析 YAML 文档
func Parse(registry *TypeRegistry, r io.Reader) ([]*bean.Definition, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("definition: invalid yaml: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, formatValidationError(err)
	}

	seen := make(map[string]bool, len(doc.Beans))
	defs := make([]*bean.Definition, 0, len(doc.Beans))
	for _, spec := range doc.Beans {
		if seen[spec.Name] {
			return nil, fmt.Errorf("definition: bean %q declared twice", spec.Name)
		}
		seen[spec.Name] = true

		def, err := spec.toDefinition(registry)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s beanSpec) toDefinition(registry *TypeRegistry) (*bean.Definition, error) {
	opts := []bean.Option{}

	if s.Scope != "" {
		scope, err := bean.ParseScope(s.Scope)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bean.WithScope(scope))
	}
	if s.Lazy {
		opts = append(opts, bean.WithLazy())
	}
	if s.Primary {
		opts = append(opts, bean.WithPrimary())
	}
	if len(s.DependsOn) > 0 {
		opts = append(opts, bean.WithDependsOn(s.DependsOn...))
	}
	if s.InitMethod != "" {
		opts = append(opts, bean.WithInitMethod(s.InitMethod))
	}
	if s.DestroyMethod != "" {
		opts = append(opts, bean.WithDestroyMethod(s.DestroyMethod))
	}
	if s.FactoryBean != "" {
		opts = append(opts, bean.WithFactoryMethod(s.FactoryBean, s.FactoryMethod))
	}
	if s.Factory != "" {
		fn, ok := registry.Factory(s.Factory)
		if !ok {
			return nil, fmt.Errorf("definition: bean %q: unknown factory %q", s.Name, s.Factory)
		}
		opts = append(opts, bean.WithFactory(fn))
	}

	if len(s.Args) > 0 {
		args := make([]any, len(s.Args))
		for i, a := range s.Args {
			args[i] = a.resolve()
		}
		opts = append(opts, bean.WithArgs(args...))
	}
	for _, p := range s.Properties {
		if p.Name == "" {
			return nil, fmt.Errorf("definition: bean %q: property without name", s.Name)
		}
		opts = append(opts, bean.WithProperty(p.Name, p.resolve()))
	}

	def := bean.NewDefinition(s.Name, nil, opts...)
	if s.Type != "" {
		typ, ctors, ok := registry.Type(s.Type)
		if !ok {
			return nil, fmt.Errorf("definition: bean %q: unknown type %q (registered: %s)",
				s.Name, s.Type, strings.Join(registry.Aliases(), ", "))
		}
		def.Type = typ
		// 工厂 bean 方法创建的实例不使用注册的构造函数
		if s.FactoryBean == "" && s.Factory == "" {
			def.Constructors = append(def.Constructors, ctors...)
		}
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (v valueSpec) resolve() any {
	if v.Ref != "" {
		return bean.Reference(v.Ref)
	}
	return v.Value
}

// formatValidationError 将校验错误整理为可读信息
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.TrimPrefix(e.Namespace(), "document.")
		switch e.Tag() {
		case "required", "required_with", "required_without_all":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "excluded_with":
			msgs = append(msgs, fmt.Sprintf("%s cannot be combined with %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return fmt.Errorf("definition: %s", strings.Join(msgs, "; "))
}
