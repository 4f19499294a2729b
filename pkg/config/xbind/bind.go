package xbind

import (
	"reflect"

	"github.com/omeyang/xbind/pkg/config/xconf"
)

// Bind 把配置节点绑定为 T 类型的新实例。
//
// 绑定读取 sec 的快照，期间发生的重载不会造成撕裂读取。
// 失败时返回 *BindError（可用 errors.Is 匹配错误类别），不返回部分构建的结果。
// 传入的 Catalog 在首次绑定时被冻结。
func Bind[T any](sec xconf.Section, opts ...Option) (T, error) {
	var out T
	v, err := bindValue(sec, reflect.TypeFor[T](), opts)
	if err != nil {
		return out, err
	}
	reflect.ValueOf(&out).Elem().Set(v)
	return out, nil
}

// MustBind 与 Bind 相同，失败时 panic。
func MustBind[T any](sec xconf.Section, opts ...Option) T {
	out, err := Bind[T](sec, opts...)
	if err != nil {
		panic(err)
	}
	return out
}

// BindType 把配置节点绑定为 t 类型的新实例，适合运行期才确定目标类型的场景。
func BindType(sec xconf.Section, t reflect.Type, opts ...Option) (any, error) {
	v, err := bindValue(sec, t, opts)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func bindValue(sec xconf.Section, t reflect.Type, opts []Option) (reflect.Value, error) {
	if sec == nil {
		return reflect.Value{}, newError(ErrNullArgument, ReasonNullArgument, "").detail("section is required")
	}
	if t == nil {
		return reflect.Value{}, newError(ErrNullArgument, ReasonNullArgument, sec.Path()).detail("target type is required")
	}
	b, err := newBinder(applyOptions(opts))
	if err != nil {
		return reflect.Value{}, err
	}
	return b.bind(newNode(sec.Snapshot()), target{typ: t}, reflect.Value{})
}
