package xbind

import (
	"reflect"

	"github.com/omeyang/xbind/pkg/config/xconf"
)

// CarryOver 把 src 中配置未提及的标量字段复制到 dst，返回实际改变的字段数。
//
// dst 和 src 必须是同一结构体的非 nil 指针。只处理叶子类型（及其指针）的可写字段；
// 字段的配置键和别名都不在 sec 的直接子节点中时才复制。
// 由构造函数参数填充的字段应与参数使用相同的配置键，否则会被旧值覆盖。
func CarryOver(dst, src any, sec xconf.Section, opts ...Option) (int, error) {
	if dst == nil || src == nil || sec == nil {
		return 0, newError(ErrNullArgument, ReasonNullArgument, "")
	}
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	if dv.Type() != sv.Type() {
		return 0, newError(ErrTypeMismatch, ReasonTypeNotAssignable, sec.Path()).expect(dv.Type(), sv.Type())
	}
	if dv.Kind() != reflect.Pointer || dv.Type().Elem().Kind() != reflect.Struct {
		return 0, newError(ErrInvalidTargetShape, ReasonUnsupportedTargetType, sec.Path()).expect(dv.Type(), nil)
	}
	if dv.IsNil() || sv.IsNil() {
		return 0, newError(ErrNullArgument, ReasonNullArgument, sec.Path())
	}
	if dv.Pointer() == sv.Pointer() {
		return 0, nil
	}

	b, err := newBinder(applyOptions(opts))
	if err != nil {
		return 0, err
	}
	st := dv.Type().Elem()
	sch, err := b.cat.schemaFor(st)
	if err != nil {
		return 0, withPath(err, sec.Path())
	}

	present := b.presentKeys(sec)

	changed := 0
	for _, f := range sch.fields {
		if !b.carriable(st, f) || anyPresent(f.meta.keys(), present) {
			continue
		}
		df := dv.Elem().FieldByIndex(f.index)
		sf := sv.Elem().FieldByIndex(f.index)
		if !df.CanSet() || reflect.DeepEqual(df.Interface(), sf.Interface()) {
			continue
		}
		df.Set(sf)
		changed++
	}
	return changed, nil
}

// presentKeys 返回构建时实际用于绑定成员的配置键（已规范化）。
// 登记过的类型提示与 typeHint 一致：有 "value" 子节点时成员来自 "value"，
// 否则 "type" 本身不是成员。
func (b *binder) presentKeys(sec xconf.Section) map[string]bool {
	skipType := false
	if name, ok := sec.Section(typeKey).Value(); ok && name != "" {
		if _, found := b.cat.lookupName(name); found {
			if v := sec.Section(valueKey); v.Exists() {
				sec = v
			} else {
				skipType = true
			}
		}
	}

	present := make(map[string]bool)
	for _, c := range sec.Children() {
		k := normalizeKey(c.Key())
		if skipType && k == typeKey {
			continue
		}
		present[k] = true
	}
	return present
}

// carriable 报告字段是否是叶子类型或叶子类型的指针。
func (b *binder) carriable(st reflect.Type, f *fieldInfo) bool {
	tg := target{typ: f.typ, declaring: st, member: f.name, meta: &f.meta}
	if b.isLeaf(f.typ, tg) {
		return true
	}
	return f.typ.Kind() == reflect.Pointer && b.isLeaf(f.typ.Elem(), tg.withType(f.typ.Elem()))
}

func anyPresent(keys []string, present map[string]bool) bool {
	for _, k := range keys {
		if present[k] {
			return true
		}
	}
	return false
}
