package xbind

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// schemaCacheSize 是每个 Catalog 缓存的结构描述数量上限。
const schemaCacheSize = 512

// Catalog 是进程启动时显式构建的静态元数据表。
//
// 它登记类型提示使用的类型名、类型级和成员级默认类型、类型级转换函数、
// 具名转换函数、枚举名称表以及构造函数。注册方法可以链式调用，
// 第一个注册错误被保留并由 Err 返回。
//
// Catalog 在第一次绑定时自动冻结，之后的注册返回 ErrCatalogFrozen；
// 冻结后的读取无需加锁，可被并发的绑定调用共享。
type Catalog struct {
	mu     sync.Mutex
	frozen atomic.Bool
	err    error

	names          map[string]reflect.Type // 小写名称 -> 类型
	defaults       map[reflect.Type]reflect.Type
	memberDefaults map[memberKey]reflect.Type
	converters     map[reflect.Type]Converter
	named          map[string]Converter
	enums          map[reflect.Type]*enumTable
	ctors          map[reflect.Type][]*ctorSpec
	sealed         map[reflect.Type]bool // 不允许隐式零值构造的类型

	schemas *lru.Cache[reflect.Type, *schema]
}

// NewCatalog 创建空的 Catalog。
func NewCatalog() *Catalog {
	// 仅在 size <= 0 时返回错误
	cache, _ := lru.New[reflect.Type, *schema](schemaCacheSize) //nolint:errcheck // 常量容量
	return &Catalog{
		names:          make(map[string]reflect.Type),
		defaults:       make(map[reflect.Type]reflect.Type),
		memberDefaults: make(map[memberKey]reflect.Type),
		converters:     make(map[reflect.Type]Converter),
		named:          make(map[string]Converter),
		enums:          make(map[reflect.Type]*enumTable),
		ctors:          make(map[reflect.Type][]*ctorSpec),
		sealed:         make(map[reflect.Type]bool),
		schemas:        cache,
	}
}

// emptyCatalog 在调用方未提供 Catalog 时使用。
var emptyCatalog = NewCatalog().Freeze()

// Err 返回第一个注册错误。
func (c *Catalog) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Freeze 冻结 Catalog 并返回自身。可重复调用。
func (c *Catalog) Freeze() *Catalog {
	c.mu.Lock()
	c.frozen.Store(true)
	c.mu.Unlock()
	return c
}

// Frozen 报告 Catalog 是否已冻结。
func (c *Catalog) Frozen() bool {
	return c.frozen.Load()
}

// register 在锁内执行一次注册；已有错误或已冻结时跳过。
func (c *Catalog) register(fn func() error) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c
	}
	if c.frozen.Load() {
		c.err = newError(ErrCatalogFrozen, ReasonCatalogFrozen, "")
		return c
	}
	c.err = fn()
	return c
}

// =============================================================================
// 类型
// =============================================================================

// Name 为类型登记名称，供配置中的 "type" 提示引用。名称不区分大小写。
func (c *Catalog) Name(name string, t reflect.Type) *Catalog {
	return c.register(func() error {
		if name == "" || t == nil {
			return newError(ErrNullArgument, ReasonNullArgument, "").detail("type name and type are required")
		}
		if isAbstract(t) {
			return newError(ErrTypeMismatch, ReasonCannotCreateAbstractType, "").expect(nil, t).detail(name)
		}
		key := strings.ToLower(name)
		if prev, ok := c.names[key]; ok && prev != t {
			return newError(ErrInconsistentMetadata, ReasonDuplicateTypeName, "").expect(prev, t).detail(name)
		}
		c.names[key] = t
		return nil
	})
}

// Default 声明目标类型的默认具体类型（类型级元数据）。
func (c *Catalog) Default(target, concrete reflect.Type) *Catalog {
	return c.register(func() error {
		if err := checkConcrete(target, concrete); err != nil {
			return err
		}
		c.defaults[target] = concrete
		return nil
	})
}

// MemberDefault 声明 (declaring, member) 的默认具体类型（成员级元数据）。
// 与 xbind 标签中的 type= 等价，适用于无法修改标签的类型和构造函数参数。
func (c *Catalog) MemberDefault(declaring reflect.Type, member string, concrete reflect.Type) *Catalog {
	return c.register(func() error {
		if err := checkMemberConcrete(declaring, member, concrete); err != nil {
			return err
		}
		c.memberDefaults[newMemberKey(declaring, member)] = concrete
		return nil
	})
}

// =============================================================================
// 转换函数与枚举
// =============================================================================

// Converter 声明目标类型的转换函数（类型级元数据）。
// 注册后该类型被视为叶子类型。
func (c *Catalog) Converter(target reflect.Type, conv Converter) *Catalog {
	return c.register(func() error {
		if target == nil || !conv.valid() {
			return newError(ErrNullArgument, ReasonNullArgument, "").detail("target type and converter are required")
		}
		if !conv.out.AssignableTo(target) {
			return newError(ErrTypeMismatch, ReasonTypeNotAssignable, "").expect(target, conv.out)
		}
		c.converters[target] = conv
		return nil
	})
}

// NamedConverter 登记具名转换函数，供标签 conv= 和 Param.Conv 引用。
func (c *Catalog) NamedConverter(name string, conv Converter) *Catalog {
	return c.register(func() error {
		if name == "" || !conv.valid() {
			return newError(ErrNullArgument, ReasonNullArgument, "").detail("converter name and converter are required")
		}
		c.named[strings.ToLower(name)] = conv
		return nil
	})
}

// Enum 为整数类型登记枚举名称表。名称匹配不区分大小写；
// 绑定时支持以 ","、"|" 或单词 "or" 分隔的多个名称，结果按位或。
func (c *Catalog) Enum(t reflect.Type, values map[string]int64) *Catalog {
	return c.register(func() error {
		if t == nil || len(values) == 0 {
			return newError(ErrNullArgument, ReasonNullArgument, "").detail("enum type and values are required")
		}
		if !isIntegerKind(t.Kind()) {
			return newError(ErrInvalidTargetShape, ReasonUnsupportedTargetType, "").expect(nil, t).detail("enum types must be integers")
		}
		table := &enumTable{values: make(map[string]int64, len(values))}
		for name, v := range values {
			table.values[strings.ToLower(name)] = v
		}
		c.enums[t] = table
		return nil
	})
}

// =============================================================================
// 构造函数
// =============================================================================

// ParamSpec 描述构造函数参数：配置键名、别名、默认值和成员级元数据。
type ParamSpec struct {
	name       string
	aliases    []string
	def        any
	hasDefault bool
	typeName   string
	convName   string
}

// Param 创建名为 name 的参数描述。
func Param(name string) ParamSpec {
	return ParamSpec{name: name}
}

// Alias 追加备用键名。
func (p ParamSpec) Alias(names ...string) ParamSpec {
	p.aliases = append(append([]string(nil), p.aliases...), names...)
	return p
}

// Default 设置参数缺省值。v 为 nil 表示参数类型的零值。
func (p ParamSpec) Default(v any) ParamSpec {
	p.def = v
	p.hasDefault = true
	return p
}

// Type 指定参数的默认具体类型（Catalog 中登记的类型名）。
func (p ParamSpec) Type(name string) ParamSpec {
	p.typeName = name
	return p
}

// Conv 指定参数使用的具名转换函数。
func (p ParamSpec) Conv(name string) ParamSpec {
	p.convName = name
	return p
}

// ctorSpec 是已登记的构造函数。
type ctorSpec struct {
	fn     reflect.Value
	out    reflect.Type
	hasErr bool
	params []ctorParam
}

type ctorParam struct {
	spec ParamSpec
	typ  reflect.Type
	def  reflect.Value
}

var errorType = reflect.TypeFor[error]()

// Constructor 登记构造函数。
//
// fn 必须是函数，返回 T、*T、(T, error) 或 (*T, error)，T 为结构体；
// params 按顺序为每个参数提供名称。同一类型可以登记多个构造函数，
// 绑定时按匹配到的配置键选择最合适的一个。
//
//	cat.Constructor(NewServer, xbind.Param("host"), xbind.Param("port").Default(8080))
func (c *Catalog) Constructor(fn any, params ...ParamSpec) *Catalog {
	return c.register(func() error {
		spec, err := newCtorSpec(fn, params)
		if err != nil {
			return err
		}
		key := indirectType(spec.out)
		c.ctors[key] = append(c.ctors[key], spec)
		return nil
	})
}

// Sealed 声明结构体类型只能通过登记的构造函数创建。
//
// 未声明时，没有登记构造函数的结构体使用隐式的零值构造（复合字面量）。
// 零值不可用的类型（内部持有需要初始化的通道、锁或句柄）应声明为 Sealed；
// 此后若没有登记构造函数，绑定报告 NoPublicConstructorsFound。
func (c *Catalog) Sealed(t reflect.Type) *Catalog {
	return c.register(func() error {
		if t == nil {
			return newError(ErrNullArgument, ReasonNullArgument, "").detail("type is required")
		}
		st := indirectType(t)
		if st.Kind() != reflect.Struct {
			return newError(ErrInvalidTargetShape, ReasonUnsupportedTargetType, "").expect(nil, t).
				detail("only struct types can be sealed")
		}
		c.sealed[st] = true
		return nil
	})
}

func newCtorSpec(fn any, params []ParamSpec) (*ctorSpec, error) {
	if fn == nil {
		return nil, newError(ErrNullArgument, ReasonNullArgument, "").detail("constructor is required")
	}
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	invalid := func(format string, args ...any) error {
		return newError(ErrInvalidTargetShape, ReasonInvalidConstructor, "").
			expect(nil, ft).detail(fmt.Sprintf(format, args...))
	}

	if ft.Kind() != reflect.Func || fv.IsNil() {
		return nil, invalid("not a function")
	}
	if ft.IsVariadic() {
		return nil, invalid("variadic constructors are not supported")
	}
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return nil, invalid("must return T or (T, error)")
	}
	out := ft.Out(0)
	if indirectType(out).Kind() != reflect.Struct {
		return nil, invalid("result must be a struct or pointer to struct")
	}
	if len(params) != ft.NumIn() {
		return nil, invalid("%d parameters, %d names", ft.NumIn(), len(params))
	}

	spec := &ctorSpec{fn: fv, out: out, hasErr: ft.NumOut() == 2}
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if p.name == "" {
			return nil, invalid("parameter %d has no name", i)
		}
		key := normalizeKey(p.name)
		if seen[key] {
			return nil, invalid("duplicate parameter name %q", p.name)
		}
		seen[key] = true

		cp := ctorParam{spec: p, typ: ft.In(i)}
		if p.hasDefault {
			def, err := defaultValue(p.def, cp.typ)
			if err != nil {
				return nil, invalid("parameter %q: %v", p.name, err)
			}
			cp.def = def
		}
		spec.params = append(spec.params, cp)
	}
	return spec, nil
}

// defaultValue 把参数缺省值转换为参数类型。
func defaultValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(t):
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	case rv.Type().ConvertibleTo(t) && sameKindFamily(rv.Type(), t):
		return rv.Convert(t), nil
	default:
		return reflect.Value{}, fmt.Errorf("default %T is not assignable to %s", v, t)
	}
}

// sameKindFamily 限制 Convert 只用于同类数值/字符串之间，避免 int -> string 这类意外转换。
func sameKindFamily(a, b reflect.Type) bool {
	fa, fb := kindFamily(a.Kind()), kindFamily(b.Kind())
	return fa != 0 && fa == fb
}

func kindFamily(k reflect.Kind) int {
	switch {
	case isIntegerKind(k), k == reflect.Float32, k == reflect.Float64:
		return 1
	case k == reflect.String:
		return 2
	case k == reflect.Bool:
		return 3
	}
	return 0
}

// =============================================================================
// 读取（冻结后无锁）
// =============================================================================

func (c *Catalog) lookupName(name string) (reflect.Type, bool) {
	t, ok := c.names[strings.ToLower(name)]
	return t, ok
}

func (c *Catalog) lookupNamedConverter(name string) (Converter, bool) {
	conv, ok := c.named[strings.ToLower(name)]
	return conv, ok
}

func (c *Catalog) typeDefault(t reflect.Type) reflect.Type {
	return c.defaults[t]
}

func (c *Catalog) memberDefault(declaring reflect.Type, member string) reflect.Type {
	if declaring == nil || member == "" {
		return nil
	}
	return c.memberDefaults[newMemberKey(declaring, member)]
}

func (c *Catalog) converter(t reflect.Type) (Converter, bool) {
	conv, ok := c.converters[t]
	return conv, ok
}

func (c *Catalog) enum(t reflect.Type) *enumTable {
	return c.enums[t]
}

func (c *Catalog) isSealed(t reflect.Type) bool {
	return c.sealed[t]
}

func (c *Catalog) constructors(t reflect.Type) []*ctorSpec {
	return c.ctors[indirectType(t)]
}
