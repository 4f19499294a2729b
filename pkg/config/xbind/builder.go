package xbind

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/omeyang/xbind/pkg/config/xconf"
)

// target 描述一次绑定的目标：类型，以及绑定成员时的声明类型、成员名和成员元数据。
// 集合元素继承所属成员的 declaring/member/meta。
type target struct {
	typ       reflect.Type
	declaring reflect.Type
	member    string
	meta      *memberMeta
}

func (t target) withType(typ reflect.Type) target {
	t.typ = typ
	return t
}

// node 包装正在绑定的配置节点。
type node struct {
	sec         xconf.Section
	hinted      bool   // 已处理过类型提示
	skipType    bool   // "type" 子节点已作为类型提示消费
	unknownHint string // 未登记的 "type" 值，可能是普通成员
	kids        []xconf.Section
	loaded      bool
}

func newNode(sec xconf.Section) *node {
	return &node{sec: sec}
}

func (n *node) path() string {
	return n.sec.Path()
}

func (n *node) children() []xconf.Section {
	if !n.loaded {
		n.loaded = true
		for _, c := range n.sec.Children() {
			if n.skipType && strings.EqualFold(c.Key(), typeKey) {
				continue
			}
			n.kids = append(n.kids, c)
		}
	}
	return n.kids
}

func (n *node) hasChildren() bool {
	return len(n.children()) > 0
}

// value 返回叶子值。分支节点返回 ("", false)。
func (n *node) value() (string, bool) {
	if n.hasChildren() {
		return "", false
	}
	return n.sec.Value()
}

// isNull 报告节点是否既无值也无子节点（null 或不存在）。
func (n *node) isNull() bool {
	_, ok := n.value()
	return !ok && !n.hasChildren()
}

// listItems 在子节点名恰为 0..n-1 时按下标顺序返回它们。
func listItems(kids []xconf.Section) ([]xconf.Section, bool) {
	if len(kids) == 0 {
		return nil, false
	}
	out := make([]xconf.Section, len(kids))
	for _, c := range kids {
		i, err := strconv.Atoi(c.Key())
		if err != nil || i < 0 || i >= len(kids) || out[i] != nil || strconv.Itoa(i) != c.Key() {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}

// binder 持有一次绑定调用的只读上下文。
type binder struct {
	cat   *Catalog
	types *TypeRegistry
	convs *ConverterRegistry
	res   Resolver
	log   *slog.Logger
}

func newBinder(o *options) (*binder, error) {
	o.catalog.Freeze()
	if err := o.catalog.Err(); err != nil {
		return nil, err
	}
	return &binder{
		cat:   o.catalog,
		types: o.types,
		convs: o.convs,
		res:   o.resolver,
		log:   o.logger,
	}, nil
}

// bind 把节点绑定为 tg.typ 类型的值。existing 是成员当前的值（可能无效），
// 映射和集合成员在其基础上合并或清空后追加。
func (b *binder) bind(n *node, tg target, existing reflect.Value) (reflect.Value, error) {
	rt, err := b.resolveType(n, tg)
	if err != nil {
		return reflect.Value{}, err
	}

	var ex reflect.Value
	if existing.IsValid() {
		switch {
		case existing.Kind() == reflect.Interface && !existing.IsNil() && existing.Elem().Type() == rt:
			ex = existing.Elem()
		case existing.Type() == rt:
			ex = existing
		}
	}

	v, err := b.bindResolved(n, tg, rt, ex)
	if err != nil {
		return reflect.Value{}, err
	}
	if v.Type() == tg.typ {
		return v, nil
	}
	out := reflect.New(tg.typ).Elem()
	out.Set(v)
	return out, nil
}

// =============================================================================
// 类型解析
// =============================================================================

// resolveType 按以下顺序决定要实例化的具体类型（第一个命中的生效）：
// 节点中的类型提示、成员元数据、注册表成员级条目、Catalog 类型级默认、
// 注册表类型级条目、目标类型本身（非接口时）。
func (b *binder) resolveType(n *node, tg target) (reflect.Type, error) {
	t := tg.typ

	if hintable(t) && !n.hinted {
		n.hinted = true
		rt, ok, err := b.typeHint(n, t)
		if err != nil || ok {
			return rt, err
		}
	}

	if tg.meta != nil && tg.meta.defaultType != nil && tg.meta.defaultType.AssignableTo(t) {
		return tg.meta.defaultType, nil
	}
	if c := b.types.member(tg.declaring, tg.member); c != nil && c.AssignableTo(t) {
		return c, nil
	}
	if c := b.cat.typeDefault(t); c != nil {
		return c, nil
	}
	if c := b.types.target(t); c != nil {
		return c, nil
	}
	if !isAbstract(t) {
		return t, nil
	}

	path := n.path()
	switch {
	case n.unknownHint != "":
		return nil, newError(ErrTypeMismatch, ReasonUnknownTypeName, path).
			expect(t, nil).detail(fmt.Sprintf("type %q is not registered", n.unknownHint))
	case t.NumMethod() == 0:
		return nil, newError(ErrInvalidTargetShape, ReasonCannotCreateObjectType, path).expect(t, nil)
	case isCollectorInterface(t):
		return nil, newError(ErrInvalidTargetShape, ReasonUnsupportedCollectionType, path).expect(t, nil)
	default:
		return nil, newError(ErrInvalidTargetShape, ReasonCannotCreateAbstractType, path).expect(t, nil)
	}
}

// hintable 报告目标是否接受类型提示：接口、结构体或结构体指针。
func hintable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Struct:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	}
	return false
}

// typeHint 处理保留的 "type"/"value" 子节点。
// 名称未登记时记录在 n.unknownHint 中，由后续步骤决定它是否是普通成员。
func (b *binder) typeHint(n *node, t reflect.Type) (reflect.Type, bool, error) {
	name, ok := n.sec.Section(typeKey).Value()
	if !ok || name == "" {
		return nil, false, nil
	}
	ht, found := b.cat.lookupName(name)
	if !found {
		n.unknownHint = name
		return nil, false, nil
	}

	switch {
	case ht.AssignableTo(t):
	case reflect.PointerTo(ht).AssignableTo(t):
		ht = reflect.PointerTo(ht)
	default:
		return nil, false, newError(ErrTypeMismatch, ReasonTypeNotAssignable, n.path()).expect(t, ht)
	}

	if v := n.sec.Section(valueKey); v.Exists() {
		n.sec = v
		n.loaded = false
		n.kids = nil
	} else {
		n.skipType = true
	}
	return ht, true, nil
}

// =============================================================================
// 分派
// =============================================================================

func (b *binder) bindResolved(n *node, tg target, rt reflect.Type, existing reflect.Value) (reflect.Value, error) {
	if b.isLeaf(rt, tg) {
		return b.bindLeaf(n, tg, rt)
	}
	if add, elem, ok := collectorMethod(rt); ok {
		return b.bindCollector(n, tg, rt, add, elem, existing)
	}

	switch rt.Kind() {
	case reflect.Pointer:
		return b.bindPointer(n, tg, rt, existing)
	case reflect.Slice:
		return b.bindSlice(n, tg, rt)
	case reflect.Array:
		return b.bindArray(n, tg, rt)
	case reflect.Map:
		return b.bindMap(n, tg, rt, existing)
	case reflect.Struct:
		return b.bindObject(n, rt, false, existing)
	}
	return reflect.Value{}, newError(ErrInvalidTargetShape, ReasonUnsupportedTargetType, n.path()).expect(rt, nil)
}

func (b *binder) bindPointer(n *node, tg target, rt reflect.Type, existing reflect.Value) (reflect.Value, error) {
	elem := rt.Elem()
	if n.isNull() {
		return reflect.Zero(rt), nil
	}
	if s, ok := n.value(); ok && s == "" && elem.Kind() != reflect.String {
		return reflect.Zero(rt), nil
	}

	var ex reflect.Value
	if existing.IsValid() && !existing.IsNil() {
		ex = existing
	}
	if elem.Kind() == reflect.Struct && !b.isLeaf(elem, tg) {
		return b.bindObject(n, elem, true, ex)
	}

	var exElem reflect.Value
	if ex.IsValid() {
		exElem = ex.Elem()
	}
	v, err := b.bind(n, tg.withType(elem), exElem)
	if err != nil {
		return reflect.Value{}, err
	}
	p := reflect.New(elem)
	p.Elem().Set(v)
	return p, nil
}

// =============================================================================
// 集合
// =============================================================================

// items 返回集合元素对应的配置节点：
//   - 叶子值：空字符串得到空集合，否则作为单个元素
//   - 列表节点：按下标顺序的全部子节点
//   - 键控分支：元素为叶子类型时报告 ConfigurationIsNotAList，否则整个分支作为单个元素
func (b *binder) items(n *node, elem target, coll reflect.Type) ([]xconf.Section, error) {
	if s, ok := n.value(); ok {
		if s == "" {
			return nil, nil
		}
		return []xconf.Section{n.sec}, nil
	}
	kids := n.children()
	if list, ok := listItems(kids); ok {
		return list, nil
	}
	if !isAbstract(elem.typ) && b.isLeaf(elem.typ, elem) {
		return nil, newError(ErrShapeMismatch, ReasonConfigurationIsNotAList, n.path()).expect(coll, nil)
	}
	return []xconf.Section{n.sec}, nil
}

func (b *binder) bindElements(secs []xconf.Section, elem target, add func(int, reflect.Value) error) error {
	for i, s := range secs {
		v, err := b.bind(newNode(s), elem, reflect.Value{})
		if err != nil {
			return err
		}
		if err := add(i, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *binder) bindSlice(n *node, tg target, rt reflect.Type) (reflect.Value, error) {
	if n.isNull() {
		return reflect.Zero(rt), nil
	}
	elem := tg.withType(rt.Elem())
	secs, err := b.items(n, elem, rt)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.MakeSlice(rt, 0, len(secs))
	err = b.bindElements(secs, elem, func(_ int, v reflect.Value) error {
		out = reflect.Append(out, v)
		return nil
	})
	if err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}

func (b *binder) bindArray(n *node, tg target, rt reflect.Type) (reflect.Value, error) {
	elem := tg.withType(rt.Elem())
	if rt.Elem().Kind() == reflect.Array && !b.isLeaf(rt.Elem(), elem) {
		return reflect.Value{}, newError(ErrShapeMismatch, ReasonArrayRankNotSupported, n.path()).expect(rt, nil)
	}
	out := reflect.New(rt).Elem()
	if n.isNull() {
		return out, nil
	}
	secs, err := b.items(n, elem, rt)
	if err != nil {
		return reflect.Value{}, err
	}
	if len(secs) > rt.Len() {
		return reflect.Value{}, newError(ErrShapeMismatch, ReasonTooManyElements, n.path()).
			expect(rt, nil).detail(fmt.Sprintf("%d elements", len(secs)))
	}
	err = b.bindElements(secs, elem, func(i int, v reflect.Value) error {
		out.Index(i).Set(v)
		return nil
	})
	if err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}

var emptyStructType = reflect.TypeFor[struct{}]()

// bindMap 绑定字典，或在列表/叶子节点上绑定集合（map[K]struct{} / map[K]bool）。
func (b *binder) bindMap(n *node, tg target, rt reflect.Type, existing reflect.Value) (reflect.Value, error) {
	if n.isNull() {
		return reflect.Zero(rt), nil
	}
	keyT := rt.Key()
	if !b.isLeaf(keyT, target{typ: keyT}) {
		return reflect.Value{}, newError(ErrInvalidTargetShape, ReasonUnsupportedCollectionType, n.path()).
			expect(rt, nil).detail("map keys must be convertible from a string")
	}

	s, isLeafValue := n.value()
	_, isList := listItems(n.children())
	setLike := rt.Elem() == emptyStructType || rt.Elem().Kind() == reflect.Bool
	if rt.Elem() == emptyStructType || (setLike && (isList || isLeafValue)) {
		return b.bindSet(n, tg, rt)
	}

	if isLeafValue {
		if s != "" {
			return reflect.Value{}, newError(ErrShapeMismatch, ReasonTargetTypeRequiresSection, n.path()).expect(rt, nil)
		}
		if existing.IsValid() && !existing.IsNil() {
			return existing, nil
		}
		return reflect.MakeMap(rt), nil
	}
	if isList && !isIntegerKind(keyT.Kind()) {
		return reflect.Value{}, newError(ErrShapeMismatch, ReasonConfigurationIsAList, n.path()).expect(rt, nil)
	}

	m := existing
	if !m.IsValid() || m.IsNil() {
		m = reflect.MakeMapWithSize(rt, len(n.children()))
	}
	valTarget := tg.withType(rt.Elem())
	for _, c := range n.children() {
		k, err := b.convert(c.Key(), c.Path(), target{typ: keyT}, keyT)
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := b.bind(newNode(c), valTarget, m.MapIndex(k))
		if err != nil {
			return reflect.Value{}, err
		}
		m.SetMapIndex(k, v)
	}
	return m, nil
}

func (b *binder) bindSet(n *node, tg target, rt reflect.Type) (reflect.Value, error) {
	elem := tg.withType(rt.Key())
	secs, err := b.items(n, elem, rt)
	if err != nil {
		return reflect.Value{}, err
	}
	present := reflect.Zero(rt.Elem())
	if rt.Elem().Kind() == reflect.Bool {
		present = reflect.ValueOf(true).Convert(rt.Elem())
	}
	m := reflect.MakeMapWithSize(rt, len(secs))
	err = b.bindElements(secs, elem, func(_ int, v reflect.Value) error {
		m.SetMapIndex(v, present)
		return nil
	})
	if err != nil {
		return reflect.Value{}, err
	}
	return m, nil
}

// collectorMethod 识别收集器类型：带有 Add(E) 或 Append(E) 方法的指针类型，
// 方法无返回值或只返回 error。
func collectorMethod(t reflect.Type) (string, reflect.Type, bool) {
	if t.Kind() != reflect.Pointer {
		return "", nil, false
	}
	for _, name := range []string{"Add", "Append"} {
		m, ok := t.MethodByName(name)
		if !ok || m.Type.NumIn() != 2 {
			continue
		}
		switch {
		case m.Type.NumOut() == 0:
		case m.Type.NumOut() == 1 && m.Type.Out(0) == errorType:
		default:
			continue
		}
		return name, m.Type.In(1), true
	}
	return "", nil, false
}

// isCollectorInterface 报告接口是否声明了 Add(E)/Append(E)。
func isCollectorInterface(t reflect.Type) bool {
	for _, name := range []string{"Add", "Append"} {
		if m, ok := t.MethodByName(name); ok && m.Type.NumIn() == 1 {
			return true
		}
	}
	return false
}

func (b *binder) bindCollector(n *node, tg target, rt reflect.Type, add string, elemT reflect.Type, existing reflect.Value) (reflect.Value, error) {
	if elemT.Kind() == reflect.Interface && elemT.NumMethod() == 0 {
		return reflect.Value{}, newError(ErrInvalidTargetShape, ReasonUnsupportedCollectionType, n.path()).
			expect(rt, nil).detail("untyped collections are not supported")
	}
	if n.isNull() {
		return reflect.Zero(rt), nil
	}

	elem := tg.withType(elemT)
	secs, err := b.items(n, elem, rt)
	if err != nil {
		return reflect.Value{}, err
	}

	coll := existing
	if coll.IsValid() && !coll.IsNil() {
		if clear := coll.MethodByName("Clear"); clear.IsValid() && clear.Type().NumIn() == 0 {
			clear.Call(nil)
		}
	} else {
		coll, err = b.newCollector(rt, n.path())
		if err != nil {
			return reflect.Value{}, err
		}
	}

	addFn := coll.MethodByName(add)
	err = b.bindElements(secs, elem, func(_ int, v reflect.Value) error {
		out := addFn.Call([]reflect.Value{v})
		if len(out) == 1 && !out[0].IsNil() {
			cause, _ := out[0].Interface().(error) //nolint:errcheck // 返回类型已检查
			return newError(ErrConversionFailure, ReasonConversionFailed, n.path()).expect(rt, elemT).wrap(cause)
		}
		return nil
	})
	if err != nil {
		return reflect.Value{}, err
	}
	return coll, nil
}

// newCollector 创建空收集器：优先调用登记的零参数构造函数，否则使用零值。
func (b *binder) newCollector(rt reflect.Type, path string) (reflect.Value, error) {
	for _, c := range b.cat.constructors(rt) {
		if len(c.params) != 0 {
			continue
		}
		out := c.fn.Call(nil)
		if c.hasErr && !out[1].IsNil() {
			cause, _ := out[1].Interface().(error) //nolint:errcheck // 返回类型已检查
			return reflect.Value{}, newError(ErrConstructorResolution, ReasonConstructorFailed, path).expect(rt, c.out).wrap(cause)
		}
		return toPointer(out[0], rt, path)
	}
	return reflect.New(rt.Elem()), nil
}

// toPointer 把构造函数结果（T 或 *T）转换为 *T。
func toPointer(v reflect.Value, ptrType reflect.Type, path string) (reflect.Value, error) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, newError(ErrConstructorResolution, ReasonConstructorFailed, path).
				expect(ptrType, v.Type()).detail("constructor returned nil")
		}
		return v, nil
	}
	p := reflect.New(ptrType.Elem())
	p.Elem().Set(v)
	return p, nil
}

// =============================================================================
// 对象
// =============================================================================

// bindObject 选择构造函数创建结构体 st，然后把剩余子节点绑定到导出字段。
// wantPtr 为 true 时返回 *st。
func (b *binder) bindObject(n *node, st reflect.Type, wantPtr bool, existing reflect.Value) (reflect.Value, error) {
	path := n.path()
	if s, ok := n.value(); ok && s != "" {
		return reflect.Value{}, newError(ErrShapeMismatch, ReasonTargetTypeRequiresSection, path).expect(st, nil)
	}
	kids := n.children()
	if _, isList := listItems(kids); isList {
		return reflect.Value{}, newError(ErrShapeMismatch, ReasonConfigurationIsAList, path).expect(st, nil)
	}

	sch, err := b.cat.schemaFor(st)
	if err != nil {
		return reflect.Value{}, withPath(err, path)
	}
	if n.unknownHint != "" && !sch.hasKey(typeKey) {
		return reflect.Value{}, newError(ErrTypeMismatch, ReasonUnknownTypeName, path).
			expect(st, nil).detail(fmt.Sprintf("type %q is not registered", n.unknownHint))
	}

	available := make(map[string]xconf.Section, len(kids))
	for _, c := range kids {
		k := normalizeKey(c.Key())
		if _, dup := available[k]; !dup {
			available[k] = c
		}
	}

	cand, err := b.selectConstructor(sch, available, path)
	if err != nil {
		return reflect.Value{}, err
	}

	var p reflect.Value
	consumed := make(map[string]bool)
	if cand.ctor.implicit {
		p = reflect.New(st)
		if existing.IsValid() {
			if existing.Kind() == reflect.Pointer {
				p = existing
			} else {
				p.Elem().Set(existing)
			}
		}
	} else {
		p, err = b.construct(cand, st, path, consumed)
		if err != nil {
			return reflect.Value{}, err
		}
	}

	obj := p.Elem()
	for _, c := range kids {
		k := normalizeKey(c.Key())
		if consumed[k] {
			continue
		}
		fi := sch.byKey[k]
		if fi == nil {
			b.log.Debug("xbind: ignoring unknown configuration key",
				slog.String("path", c.Path()),
				slog.String("type", st.String()))
			continue
		}
		fv := obj.FieldByIndex(fi.index)
		if !fv.CanSet() {
			continue
		}
		ftg := target{typ: fi.typ, declaring: st, member: fi.name, meta: &fi.meta}
		v, err := b.bind(newNode(c), ftg, fv)
		if err != nil {
			return reflect.Value{}, err
		}
		fv.Set(v)
	}

	if wantPtr {
		return p, nil
	}
	return obj, nil
}

// withPath 为注册期产生的 BindError 补充节点路径。
func withPath(err error, path string) error {
	var be *BindError
	if errors.As(err, &be) && be.Path == "" {
		cp := *be
		cp.Path = path
		return &cp
	}
	return err
}
