package xbind

import (
	"fmt"
	"maps"
	"reflect"
)

// =============================================================================
// Converter
// =============================================================================

// Converter 把单个字符串叶子值转换为 Out 类型的值。
type Converter struct {
	out reflect.Type
	fn  func(string) (any, error)
}

// Conv 从强类型函数创建 Converter。
//
//	xbind.Conv(func(s string) (Level, error) { return ParseLevel(s) })
func Conv[T any](fn func(string) (T, error)) Converter {
	if fn == nil {
		return Converter{out: reflect.TypeFor[T]()}
	}
	return Converter{
		out: reflect.TypeFor[T](),
		fn: func(s string) (any, error) {
			v, err := fn(s)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// ConvFunc 从非泛型函数创建 Converter。out 为声明的结果类型，fn 可以返回 nil。
func ConvFunc(out reflect.Type, fn func(string) (any, error)) Converter {
	return Converter{out: out, fn: fn}
}

// Out 返回转换结果的声明类型。
func (c Converter) Out() reflect.Type {
	return c.out
}

func (c Converter) valid() bool {
	return c.out != nil && c.fn != nil
}

// =============================================================================
// 成员定位
// =============================================================================

// memberKey 标识 (声明类型, 成员) 对。成员名按 normalizeKey 归一化。
type memberKey struct {
	declaring reflect.Type
	member    string
}

func newMemberKey(declaring reflect.Type, member string) memberKey {
	return memberKey{declaring: indirectType(declaring), member: normalizeKey(member)}
}

// indirectType 去掉一层指针。
func indirectType(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// memberType 查找结构体字段的声明类型。成员不存在时返回 nil。
func memberType(declaring reflect.Type, member string) reflect.Type {
	st := indirectType(declaring)
	if st == nil || st.Kind() != reflect.Struct {
		return nil
	}
	want := normalizeKey(member)
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() {
			continue
		}
		if f.Name == member || normalizeKey(f.Name) == want {
			return f.Type
		}
	}
	return nil
}

// assignableToMember 判断 t 是否可赋值给成员类型本身或其元素类型
// （切片、数组、映射值、指针所指类型）。
func assignableToMember(t, member reflect.Type) bool {
	if t.AssignableTo(member) {
		return true
	}
	switch member.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Pointer:
		return t.AssignableTo(member.Elem())
	}
	return false
}

func isAbstract(t reflect.Type) bool {
	return t.Kind() == reflect.Interface
}

// =============================================================================
// TypeRegistry
// =============================================================================

// TypeRegistry 是每次绑定调用传入的默认类型映射，构建后只读。
//
// 成员级条目优先于类型级条目；配置中的类型提示优先于两者。
type TypeRegistry struct {
	byMember map[memberKey]reflect.Type
	byTarget map[reflect.Type]reflect.Type
}

// TypeRegistryBuilder 以流式方式构建 TypeRegistry。
// 注册时立即校验，第一个错误会被保留并由 Build 返回。
type TypeRegistryBuilder struct {
	reg *TypeRegistry
	err error
}

// NewTypeRegistry 创建 TypeRegistry 构建器。
func NewTypeRegistry() *TypeRegistryBuilder {
	return &TypeRegistryBuilder{reg: &TypeRegistry{
		byMember: make(map[memberKey]reflect.Type),
		byTarget: make(map[reflect.Type]reflect.Type),
	}}
}

// For 为目标类型注册默认具体类型。concrete 必须是非接口类型且可赋值给 target。
func (b *TypeRegistryBuilder) For(target, concrete reflect.Type) *TypeRegistryBuilder {
	if b.err != nil {
		return b
	}
	if b.err = checkConcrete(target, concrete); b.err != nil {
		return b
	}
	b.reg.byTarget[target] = concrete
	return b
}

// ForMember 为 (declaring, member) 注册默认具体类型。
// 成员是已知字段时，concrete 必须可赋值给字段类型或其元素类型；
// 未知成员（例如构造函数参数）跳过该检查。
func (b *TypeRegistryBuilder) ForMember(declaring reflect.Type, member string, concrete reflect.Type) *TypeRegistryBuilder {
	if b.err != nil {
		return b
	}
	b.err = checkMemberConcrete(declaring, member, concrete)
	if b.err != nil {
		return b
	}
	b.reg.byMember[newMemberKey(declaring, member)] = concrete
	return b
}

// Build 返回不可变的 TypeRegistry 或第一个注册错误。
func (b *TypeRegistryBuilder) Build() (*TypeRegistry, error) {
	if b.err != nil {
		return nil, b.err
	}
	reg := b.reg
	b.reg = &TypeRegistry{
		byMember: maps.Clone(reg.byMember),
		byTarget: maps.Clone(reg.byTarget),
	}
	return reg, nil
}

// MustBuild 与 Build 相同，但失败时 panic。
func (b *TypeRegistryBuilder) MustBuild() *TypeRegistry {
	reg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return reg
}

func (r *TypeRegistry) member(declaring reflect.Type, member string) reflect.Type {
	if r == nil || declaring == nil || member == "" {
		return nil
	}
	return r.byMember[newMemberKey(declaring, member)]
}

func (r *TypeRegistry) target(t reflect.Type) reflect.Type {
	if r == nil {
		return nil
	}
	return r.byTarget[t]
}

func checkConcrete(target, concrete reflect.Type) error {
	if target == nil || concrete == nil {
		return newError(ErrNullArgument, ReasonNullArgument, "").detail("target and concrete types are required")
	}
	if isAbstract(concrete) {
		reason := ReasonCannotCreateAbstractType
		if concrete.NumMethod() == 0 {
			reason = ReasonCannotCreateObjectType
		}
		return newError(ErrTypeMismatch, reason, "").expect(target, concrete)
	}
	if !concrete.AssignableTo(target) {
		return newError(ErrTypeMismatch, ReasonTypeNotAssignable, "").expect(target, concrete)
	}
	return nil
}

func checkMemberConcrete(declaring reflect.Type, member string, concrete reflect.Type) error {
	if declaring == nil || member == "" || concrete == nil {
		return newError(ErrNullArgument, ReasonNullArgument, "").detail("declaring type, member and concrete type are required")
	}
	if isAbstract(concrete) {
		return newError(ErrTypeMismatch, ReasonCannotCreateAbstractType, "").expect(nil, concrete)
	}
	if mt := memberType(declaring, member); mt != nil && !assignableToMember(concrete, mt) {
		return newError(ErrTypeMismatch, ReasonTypeNotAssignable, "").
			expect(mt, concrete).
			detail(fmt.Sprintf("member %s.%s", indirectType(declaring), member))
	}
	return nil
}

// =============================================================================
// ConverterRegistry
// =============================================================================

// ConverterRegistry 是每次绑定调用传入的转换函数映射，构建后只读。
type ConverterRegistry struct {
	byMember map[memberKey]Converter
	byTarget map[reflect.Type]Converter
}

// ConverterRegistryBuilder 以流式方式构建 ConverterRegistry，第一个错误胜出。
type ConverterRegistryBuilder struct {
	reg *ConverterRegistry
	err error
}

// NewConverterRegistry 创建 ConverterRegistry 构建器。
func NewConverterRegistry() *ConverterRegistryBuilder {
	return &ConverterRegistryBuilder{reg: &ConverterRegistry{
		byMember: make(map[memberKey]Converter),
		byTarget: make(map[reflect.Type]Converter),
	}}
}

// For 为目标类型注册转换函数。转换结果类型必须可赋值给 target。
func (b *ConverterRegistryBuilder) For(target reflect.Type, conv Converter) *ConverterRegistryBuilder {
	if b.err != nil {
		return b
	}
	if target == nil || !conv.valid() {
		b.err = newError(ErrNullArgument, ReasonNullArgument, "").detail("target type and converter are required")
		return b
	}
	if !conv.out.AssignableTo(target) {
		b.err = newError(ErrTypeMismatch, ReasonTypeNotAssignable, "").expect(target, conv.out)
		return b
	}
	b.reg.byTarget[target] = conv
	return b
}

// ForMember 为 (declaring, member) 注册转换函数。
func (b *ConverterRegistryBuilder) ForMember(declaring reflect.Type, member string, conv Converter) *ConverterRegistryBuilder {
	if b.err != nil {
		return b
	}
	if declaring == nil || member == "" || !conv.valid() {
		b.err = newError(ErrNullArgument, ReasonNullArgument, "").detail("declaring type, member and converter are required")
		return b
	}
	if mt := memberType(declaring, member); mt != nil && !assignableToMember(conv.out, mt) {
		b.err = newError(ErrTypeMismatch, ReasonTypeNotAssignable, "").
			expect(mt, conv.out).
			detail(fmt.Sprintf("member %s.%s", indirectType(declaring), member))
		return b
	}
	b.reg.byMember[newMemberKey(declaring, member)] = conv
	return b
}

// Build 返回不可变的 ConverterRegistry 或第一个注册错误。
func (b *ConverterRegistryBuilder) Build() (*ConverterRegistry, error) {
	if b.err != nil {
		return nil, b.err
	}
	reg := b.reg
	b.reg = &ConverterRegistry{
		byMember: maps.Clone(reg.byMember),
		byTarget: maps.Clone(reg.byTarget),
	}
	return reg, nil
}

// MustBuild 与 Build 相同，但失败时 panic。
func (b *ConverterRegistryBuilder) MustBuild() *ConverterRegistry {
	reg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return reg
}

func (r *ConverterRegistry) member(declaring reflect.Type, member string) (Converter, bool) {
	if r == nil || declaring == nil || member == "" {
		return Converter{}, false
	}
	c, ok := r.byMember[newMemberKey(declaring, member)]
	return c, ok
}

func (r *ConverterRegistry) target(t reflect.Type) (Converter, bool) {
	if r == nil {
		return Converter{}, false
	}
	c, ok := r.byTarget[t]
	return c, ok
}
