package xbind

import "reflect"

// Resolver 为没有匹配配置键的构造函数参数提供值，例如注入的协作者。
//
// Resolver 只在绑定调用期间使用，引擎不保存任何状态。
// 参数存在匹配的配置键时，配置值总是优先于 Resolver。
type Resolver interface {
	// CanResolve 报告能否提供 t 类型的值。
	CanResolve(t reflect.Type) bool

	// Resolve 返回 t 类型的值。
	Resolve(t reflect.Type) (any, error)
}

// ResolverFuncs 用两个函数实现 Resolver。Can 为 nil 时视为不能提供任何类型。
type ResolverFuncs struct {
	Can func(reflect.Type) bool
	Do  func(reflect.Type) (any, error)
}

// CanResolve 实现 Resolver。
func (r ResolverFuncs) CanResolve(t reflect.Type) bool {
	return r.Can != nil && r.Do != nil && r.Can(t)
}

// Resolve 实现 Resolver。
func (r ResolverFuncs) Resolve(t reflect.Type) (any, error) {
	return r.Do(t)
}

// Values 返回按类型提供固定值的 Resolver。
//
//	xbind.WithResolver(xbind.Values(logger, db))
func Values(vs ...any) Resolver {
	m := make(map[reflect.Type]any, len(vs))
	for _, v := range vs {
		if v != nil {
			m[reflect.TypeOf(v)] = v
		}
	}
	return ResolverFuncs{
		Can: func(t reflect.Type) bool {
			_, ok := lookupValue(m, t)
			return ok
		},
		Do: func(t reflect.Type) (any, error) {
			v, _ := lookupValue(m, t)
			return v, nil
		},
	}
}

// lookupValue 先按精确类型查找，再查找可赋值给接口 t 的值。
func lookupValue(m map[reflect.Type]any, t reflect.Type) (any, bool) {
	if v, ok := m[t]; ok {
		return v, true
	}
	if t.Kind() != reflect.Interface {
		return nil, false
	}
	for vt, v := range m {
		if vt.Implements(t) {
			return v, true
		}
	}
	return nil, false
}
