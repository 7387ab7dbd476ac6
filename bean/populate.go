package bean

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// injectionPoint 由 `di` tag 声明的字段注入。
//
//	Repo  UserRepository `di:""`             // 按类型
//	Cache Cache          `di:"redisCache"`   // 按名称
//	Audit Auditor        `di:"?"`            // 按类型，可选
type injectionPoint struct {
	Field    string
	Type     reflect.Type
	BeanName string
	Optional bool
}

var schemaCache sync.Map // reflect.Type -> []injectionPoint

// analyzeStruct 解析结构体上的 di tag，结果按类型缓存
func analyzeStruct(typ reflect.Type) []injectionPoint {
	if typ == nil {
		return nil
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil
	}
	if v, ok := schemaCache.Load(typ); ok {
		return v.([]injectionPoint)
	}

	var points []injectionPoint
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag || !field.IsExported() {
			continue
		}

		// 解析 tag: "name,option1,option2"
		parts := strings.Split(tagValue, ",")
		name := strings.TrimSpace(parts[0])
		optional := false

		// "di:?" 或 "di:optional" 表示按类型可选注入
		if name == "?" || name == "optional" {
			name = ""
			optional = true
		}
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			if part == "optional" || part == "?" {
				optional = true
			}
		}

		points = append(points, injectionPoint{
			Field:    field.Name,
			Type:     field.Type,
			BeanName: name,
			Optional: optional,
		})
	}

	schemaCache.Store(typ, points)
	return points
}

// populate 先按声明顺序注入属性，再注入 di tag 字段（已声明的字段跳过）
func (f *Factory) populate(run *creation, name string, def *Definition, raw any) error {
	declared := make(map[string]bool, len(def.Properties))

	for _, pv := range def.Properties {
		declared[exportedName(pv.Name)] = true

		value, err := f.resolveValue(run, pv.Value)
		if err != nil {
			return err
		}
		if err := assignProperty(raw, pv.Name, value); err != nil {
			return &PropertyAssignmentError{Bean: name, Property: pv.Name, Err: err}
		}
	}

	for _, ip := range analyzeStruct(reflect.TypeOf(raw)) {
		if declared[ip.Field] {
			continue
		}

		var (
			value any
			err   error
		)
		if ip.BeanName != "" {
			if ip.Optional && !f.registry.Contains(ip.BeanName) {
				continue
			}
			value, err = f.doGetBean(run, ip.BeanName, nil)
		} else {
			var found bool
			value, found, err = f.resolveByType(run, name, ip.Type, ip.Optional)
			if err == nil && !found {
				continue
			}
		}
		if err != nil {
			return err
		}
		if err := assignProperty(raw, ip.Field, value); err != nil {
			return &PropertyAssignmentError{Bean: name, Property: ip.Field, Err: err}
		}
	}
	return nil
}

// resolveValue 把 Ref 解析为 bean，[]any 与 map[string]any 中的 Ref 逐个解析
func (f *Factory) resolveValue(run *creation, value any) (any, error) {
	switch v := value.(type) {
	case Ref:
		return f.doGetBean(run, v.Name, nil)
	case *Ref:
		if v == nil {
			return nil, nil
		}
		return f.doGetBean(run, v.Name, nil)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := f.resolveValue(run, item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := f.resolveValue(run, item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

// resolveByType 按类型查找唯一候选，多个候选时取 primary，排除请求者自身
func (f *Factory) resolveByType(run *creation, requester string, typ reflect.Type, optional bool) (any, bool, error) {
	var candidates []string
	for _, n := range f.BeanNamesForType(typ) {
		if n != requester {
			candidates = append(candidates, n)
		}
	}

	switch len(candidates) {
	case 0:
		if optional {
			return nil, false, nil
		}
		return nil, false, &NotFoundError{Type: typ}
	case 1:
		v, err := f.doGetBean(run, candidates[0], nil)
		return v, err == nil, err
	}

	var primary []string
	for _, n := range candidates {
		if def, err := f.registry.Lookup(n); err == nil && def.Primary {
			primary = append(primary, n)
		}
	}
	if len(primary) != 1 {
		return nil, false, &AmbiguousBeanError{Type: typ, Candidates: candidates}
	}
	v, err := f.doGetBean(run, primary[0], nil)
	return v, err == nil, err
}

// assignProperty 优先写导出字段，其次调用 Set<Name> 方法
func assignProperty(target any, property string, value any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target %T is not a non-nil pointer", target)
	}
	fieldName := exportedName(property)

	if elem := v.Elem(); elem.Kind() == reflect.Struct {
		if field := elem.FieldByName(fieldName); field.IsValid() && field.CanSet() {
			converted, err := convertValue(value, field.Type())
			if err != nil {
				return err
			}
			field.Set(converted)
			return nil
		}
	}

	if setter := v.MethodByName("Set" + fieldName); setter.IsValid() {
		if setter.Type().NumIn() != 1 {
			return fmt.Errorf("setter Set%s on %T must take one argument", fieldName, target)
		}
		converted, err := convertValue(value, setter.Type().In(0))
		if err != nil {
			return err
		}
		return callResults(setter.Call([]reflect.Value{converted}))
	}

	return fmt.Errorf("no writable field or setter %q on %T", property, target)
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
