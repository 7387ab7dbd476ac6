package aop

import (
	"fmt"
	"path"
	"reflect"
	"strings"
)

// Method 描述被拦截的方法。
type Method struct {
	Name  string
	Type  reflect.Type // 方法签名，不含接收者
	Owner reflect.Type // 目标实例类型
}

// ReturnsError 报告最后一个返回值是否为 error。
func (m Method) ReturnsError() bool {
	n := m.Type.NumOut()
	return n > 0 && m.Type.Out(n-1) == errorType
}

func (m Method) String() string {
	return TypeName(m.Owner) + "." + m.Name
}

// Pointcut 决定 advisor 作用于哪些类型的哪些方法。
type Pointcut interface {
	MatchesType(t reflect.Type) bool
	MatchesMethod(m Method) bool
}

type pointcut struct {
	typeFn   func(reflect.Type) bool
	methodFn func(Method) bool
}

func (p *pointcut) MatchesType(t reflect.Type) bool {
	return p.typeFn == nil || p.typeFn(t)
}

func (p *pointcut) MatchesMethod(m Method) bool {
	return p.methodFn == nil || p.methodFn(m)
}

// NewPointcut 用类型谓词和方法谓词创建切点，nil 谓词匹配全部。
func NewPointcut(typeFn func(reflect.Type) bool, methodFn func(Method) bool) Pointcut {
	return &pointcut{typeFn: typeFn, methodFn: methodFn}
}

// Implementing 匹配实现了 iface 的类型的所有方法。
func Implementing(iface reflect.Type) Pointcut {
	return NewPointcut(func(t reflect.Type) bool { return t.AssignableTo(iface) }, nil)
}

// Within 匹配可赋值给 T 的类型；T 为接口时只匹配接口上声明的方法。
func Within[T any]() Pointcut {
	target := reflect.TypeOf((*T)(nil)).Elem()
	var methodFn func(Method) bool
	if target.Kind() == reflect.Interface {
		methodFn = func(m Method) bool {
			_, ok := target.MethodByName(m.Name)
			return ok
		}
	}
	return NewPointcut(func(t reflect.Type) bool { return t.AssignableTo(target) }, methodFn)
}

// Methods 在 pc 的基础上只匹配给定名称的方法。
func Methods(pc Pointcut, names ...string) Pointcut {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return NewPointcut(pc.MatchesType, func(m Method) bool {
		return set[m.Name] && pc.MatchesMethod(m)
	})
}

// Expression 解析 "类型模式.方法模式"，两部分都是 path.Match 通配符，
// 类型名形如 "service.UserService"（指针类型取其元素类型）。
//
//	"*.UserService.*"       UserService 的所有方法
//	"service.*.Find*"       service 包中所有类型的 Find 开头方法
func Expression(expr string) (Pointcut, error) {
	idx := strings.LastIndex(expr, ".")
	if idx <= 0 || idx == len(expr)-1 {
		return nil, fmt.Errorf("aop: invalid pointcut expression %q, want <type>.<method>", expr)
	}
	typePattern, methodPattern := expr[:idx], expr[idx+1:]
	for _, p := range []string{typePattern, methodPattern} {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("aop: invalid pointcut expression %q: %w", expr, err)
		}
	}

	return NewPointcut(
		func(t reflect.Type) bool {
			ok, _ := path.Match(typePattern, TypeName(t))
			return ok
		},
		func(m Method) bool {
			ok, _ := path.Match(methodPattern, m.Name)
			return ok
		},
	), nil
}

// MustExpression 与 Expression 相同，解析失败时 panic。
func MustExpression(expr string) Pointcut {
	pc, err := Expression(expr)
	if err != nil {
		panic(err)
	}
	return pc
}

// TypeName 返回 "包名.类型名"，指针取元素类型。
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}
