package bean

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	durationType = reflect.TypeOf(time.Duration(0))
)

// convertValue 把字面量或已解析的 bean 转换为 t 类型的值。
// 支持直接赋值、数值之间转换、字符串解析为数字/布尔/时长，以及 []any 逐个转换。
func convertValue(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot assign nil to %v", t)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if s, ok := value.(string); ok {
		return parseString(s, t)
	}

	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return rv.Convert(t), nil
	case rv.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	case rv.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := convertValue(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %T to %v", value, t)
}

func parseString(s string, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	if t == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(int64(d))
		return out, nil
	}

	switch t.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(n)
	default:
		return reflect.Value{}, fmt.Errorf("cannot convert string %q to %v", s, t)
	}
	return out, nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// callResults 检查函数调用结果：最后一个 error 返回值非空时返回该错误。
func callResults(results []reflect.Value) error {
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if last.Type().Implements(errorType) && !last.IsNil() {
		return last.Interface().(error)
	}
	return nil
}

// callMethod 调用 target 上无参数的方法，可选返回 error。
func callMethod(target any, method string) error {
	m := reflect.ValueOf(target).MethodByName(method)
	if !m.IsValid() {
		return fmt.Errorf("method %s not found on %T", method, target)
	}
	if m.Type().NumIn() != 0 {
		return fmt.Errorf("method %s on %T must not take arguments", method, target)
	}
	return callResults(m.Call(nil))
}
