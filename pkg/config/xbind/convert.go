package xbind

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	durationType        = reflect.TypeFor[time.Duration]()
	timeType            = reflect.TypeFor[time.Time]()
	uuidType            = reflect.TypeFor[uuid.UUID]()
	urlType             = reflect.TypeFor[url.URL]()
	bytesType           = reflect.TypeFor[[]byte]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// timeLayouts 是 time.Time 叶子值依次尝试的格式。
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.DateTime,
	time.DateOnly,
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

// isBuiltinLeaf 报告 t 是否有内置的字符串转换。
func isBuiltinLeaf(t reflect.Type) bool {
	switch t {
	case durationType, timeType, uuidType, urlType, bytesType:
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	if isIntegerKind(t.Kind()) {
		return true
	}
	return reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// isLeaf 报告目标是否按单个字符串值绑定。
func (b *binder) isLeaf(t reflect.Type, tg target) bool {
	if _, ok := b.leafConverter(t, tg); ok {
		return true
	}
	if b.cat.enum(t) != nil {
		return true
	}
	return isBuiltinLeaf(t)
}

// leafConverter 按优先级查找自定义转换函数：
// 成员元数据（标签 conv= / Param.Conv）、Catalog 类型级、注册表成员级、注册表类型级。
// 成员级转换函数只在结果可赋值给当前类型时生效（集合元素继承成员的元数据）。
func (b *binder) leafConverter(t reflect.Type, tg target) (Converter, bool) {
	if tg.meta != nil && tg.meta.conv.valid() && tg.meta.conv.out.AssignableTo(t) {
		return tg.meta.conv, true
	}
	if conv, ok := b.cat.converter(t); ok {
		return conv, true
	}
	if conv, ok := b.convs.member(tg.declaring, tg.member); ok && conv.out.AssignableTo(t) {
		return conv, true
	}
	if conv, ok := b.convs.target(t); ok {
		return conv, true
	}
	return Converter{}, false
}

// bindLeaf 把叶子节点转换为 t 类型的值。
func (b *binder) bindLeaf(n *node, tg target, t reflect.Type) (reflect.Value, error) {
	if n.hasChildren() {
		return reflect.Value{}, newError(ErrShapeMismatch, ReasonTargetTypeRequiresValue, n.path()).expect(t, nil)
	}
	s, ok := n.sec.Value()
	if !ok {
		// null 得到零值，不调用转换函数
		return reflect.Zero(t), nil
	}
	return b.convert(s, n.path(), tg, t)
}

// convert 执行转换阶梯。
func (b *binder) convert(s, path string, tg target, t reflect.Type) (reflect.Value, error) {
	if conv, ok := b.leafConverter(t, tg); ok {
		return applyConverter(conv, s, path, t)
	}
	if s == "" {
		return reflect.Zero(t), nil
	}
	if table := b.cat.enum(t); table != nil {
		return table.parse(s, path, t)
	}
	v, err := convertBuiltin(s, t)
	if err != nil {
		return reflect.Value{}, newError(ErrConversionFailure, ReasonConversionFailed, path).expect(t, nil).wrap(err)
	}
	return v, nil
}

func applyConverter(conv Converter, s, path string, t reflect.Type) (reflect.Value, error) {
	res, err := conv.fn(s)
	if err != nil {
		return reflect.Value{}, newError(ErrConversionFailure, ReasonConversionFailed, path).expect(t, conv.out).wrap(err)
	}
	rv := reflect.ValueOf(res)
	if res == nil || (isNilable(rv.Kind()) && rv.IsNil()) {
		if isNilable(t.Kind()) {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, newError(ErrConversionFailure, ReasonResultCannotBeNull, path).expect(t, conv.out)
	}
	return assignTo(rv, t, path)
}

// assignTo 把 v 转为 t 类型的值；v 不可赋值时报告 TypeNotAssignable。
func assignTo(v reflect.Value, t reflect.Type, path string) (reflect.Value, error) {
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, newError(ErrTypeMismatch, ReasonTypeNotAssignable, path).expect(t, v.Type())
	}
	out := reflect.New(t).Elem()
	out.Set(v)
	return out, nil
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// =============================================================================
// 内置转换
// =============================================================================

func convertBuiltin(s string, t reflect.Type) (reflect.Value, error) {
	switch t {
	case durationType:
		d, err := parseDuration(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d).Convert(t), nil
	case timeType:
		return parseTime(s)
	case uuidType:
		id, err := uuid.Parse(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(id), nil
	case urlType:
		u, err := url.Parse(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(*u), nil
	case bytesType:
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(data), nil
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		p := reflect.New(t)
		u, _ := p.Interface().(encoding.TextUnmarshaler) //nolint:errcheck // Implements 已检查
		if err := u.UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, err
		}
		return p.Elem(), nil
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetFloat(f)
	case reflect.Complex64, reflect.Complex128:
		c, err := strconv.ParseComplex(strings.TrimSpace(s), t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetComplex(c)
	case reflect.String:
		v.SetString(s)
	default:
		return reflect.Value{}, fmt.Errorf("no conversion from string to %s", t)
	}
	return v, nil
}

func parseTime(s string) (reflect.Value, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		tm, err := time.Parse(layout, s)
		if err == nil {
			return reflect.ValueOf(tm), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return reflect.Value{}, firstErr
}

// parseDuration 解析 time.ParseDuration 格式（"1h30m"），
// 或 "[-][d.]hh:mm[:ss[.fff]]" 时钟格式。
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	d, ok := parseClock(s)
	if !ok {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func parseClock(s string) (time.Duration, bool) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var days int64
	if i := strings.IndexByte(parts[0], '.'); i >= 0 {
		d, err := strconv.ParseInt(parts[0][:i], 10, 64)
		if err != nil || d < 0 {
			return 0, false
		}
		days = d
		parts[0] = parts[0][i+1:]
	}
	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || hours < 0 || hours > 23 {
		return 0, false
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, false
	}
	var seconds float64
	if len(parts) == 3 {
		seconds, err = strconv.ParseFloat(parts[2], 64)
		if err != nil || seconds < 0 || seconds >= 60 {
			return 0, false
		}
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	if neg {
		d = -d
	}
	return d, true
}

// =============================================================================
// 枚举
// =============================================================================

// enumTable 是整数枚举的名称表（键为小写名称）。
type enumTable struct {
	values map[string]int64
}

// parse 解析一个或多个枚举名称/数值，按位或合并。
// 名称之间可以用 ","、"|" 或单词 "or" 分隔。
func (e *enumTable) parse(s, path string, t reflect.Type) (reflect.Value, error) {
	fields := strings.Fields(strings.NewReplacer(",", " ", "|", " ").Replace(s))

	var acc int64
	var n int
	for _, f := range fields {
		if strings.EqualFold(f, "or") {
			continue
		}
		v, ok := e.values[strings.ToLower(f)]
		if !ok {
			parsed, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return reflect.Value{}, newError(ErrConversionFailure, ReasonConversionFailed, path).
					expect(t, nil).detail(fmt.Sprintf("unknown enum value %q", f))
			}
			v = parsed
		}
		acc |= v
		n++
	}
	if n == 0 {
		return reflect.Zero(t), nil
	}

	out := reflect.New(t).Elem()
	if t.Kind() >= reflect.Uint && t.Kind() <= reflect.Uintptr {
		if acc < 0 || out.OverflowUint(uint64(acc)) {
			return reflect.Value{}, newError(ErrConversionFailure, ReasonConversionFailed, path).
				expect(t, nil).detail(fmt.Sprintf("enum value %d overflows", acc))
		}
		out.SetUint(uint64(acc))
		return out, nil
	}
	if out.OverflowInt(acc) {
		return reflect.Value{}, newError(ErrConversionFailure, ReasonConversionFailed, path).
			expect(t, nil).detail(fmt.Sprintf("enum value %d overflows", acc))
	}
	out.SetInt(acc)
	return out, nil
}
