package xbind

import (
	"fmt"
	"reflect"
	"strings"
)

// tagName 是成员元数据使用的结构体标签。
//
//	Field T `xbind:"name,alias=a|b,type=<类型名>,conv=<转换函数名>"`
//	Skip  T `xbind:"-"`
const tagName = "xbind"

// memberMeta 是成员（字段或构造函数参数）的已解析元数据。
type memberMeta struct {
	key         string   // 主配置键
	aliases     []string // 备用键
	defaultType reflect.Type
	conv        Converter
}

// keys 返回归一化后的全部匹配键。
func (m *memberMeta) keys() []string {
	out := make([]string, 0, 1+len(m.aliases))
	out = append(out, normalizeKey(m.key))
	for _, a := range m.aliases {
		out = append(out, normalizeKey(a))
	}
	return out
}

// fieldInfo 是可绑定的导出字段。
type fieldInfo struct {
	name  string
	index []int
	typ   reflect.Type
	depth int
	meta  memberMeta
}

// paramInfo 是已解析的构造函数参数。
type paramInfo struct {
	name       string
	typ        reflect.Type
	meta       memberMeta
	def        reflect.Value
	hasDefault bool
}

// ctorInfo 是已解析的构造函数。
type ctorInfo struct {
	fn       reflect.Value
	out      reflect.Type
	hasErr   bool
	params   []paramInfo
	implicit bool // 结构体的零参数复合字面量
}

// schema 是某个对象类型一次计算、缓存复用的结构描述。
type schema struct {
	typ    reflect.Type
	fields []*fieldInfo
	byKey  map[string]*fieldInfo
	ctors  []*ctorInfo
}

// hasKey 报告配置键 key 是否对应某个字段或构造函数参数。
func (s *schema) hasKey(key string) bool {
	k := normalizeKey(key)
	if _, ok := s.byKey[k]; ok {
		return true
	}
	for _, c := range s.ctors {
		for _, p := range c.params {
			for _, pk := range p.meta.keys() {
				if pk == k {
					return true
				}
			}
		}
	}
	return false
}

// schemaFor 返回 t（去掉指针后）的结构描述，优先使用缓存。
func (c *Catalog) schemaFor(t reflect.Type) (*schema, error) {
	t = indirectType(t)
	if s, ok := c.schemas.Get(t); ok {
		return s, nil
	}
	s, err := c.buildSchema(t)
	if err != nil {
		return nil, err
	}
	c.schemas.Add(t, s)
	return s, nil
}

func (c *Catalog) buildSchema(t reflect.Type) (*schema, error) {
	s := &schema{typ: t, byKey: make(map[string]*fieldInfo)}

	if t.Kind() == reflect.Struct {
		if err := c.collectFields(s); err != nil {
			return nil, err
		}
	}

	for _, spec := range c.constructors(t) {
		ci := &ctorInfo{fn: spec.fn, out: spec.out, hasErr: spec.hasErr}
		for _, p := range spec.params {
			meta, err := c.resolveMeta(t, p.spec.name, p.typ, p.spec.name, p.spec.aliases, p.spec.typeName, p.spec.convName)
			if err != nil {
				return nil, err
			}
			ci.params = append(ci.params, paramInfo{
				name:       p.spec.name,
				typ:        p.typ,
				meta:       meta,
				def:        p.def,
				hasDefault: p.spec.hasDefault,
			})
		}
		s.ctors = append(s.ctors, ci)
	}
	if len(s.ctors) == 0 && t.Kind() == reflect.Struct && !c.isSealed(t) {
		s.ctors = []*ctorInfo{{out: t, implicit: true}}
	}

	if err := s.checkDefaultTypes(); err != nil {
		return nil, err
	}
	return s, nil
}

// collectFields 收集可设置的导出字段。
// 嵌入的非指针结构体被展开；经过指针或未导出字段才能到达的字段被跳过。
func (c *Catalog) collectFields(s *schema) error {
	for _, f := range reflect.VisibleFields(s.typ) {
		if !f.IsExported() || !reachable(s.typ, f.Index) {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			continue
		}

		tag, hasTag := f.Tag.Lookup(tagName)
		if tag == "-" {
			continue
		}
		name, opts := parseTag(tag)
		if !hasTag || name == "" {
			name = f.Name
		}
		meta, err := c.resolveMeta(s.typ, f.Name, f.Type, name, opts.aliases, opts.typeName, opts.convName)
		if err != nil {
			return err
		}

		fi := &fieldInfo{name: f.Name, index: f.Index, typ: f.Type, depth: len(f.Index), meta: meta}
		s.fields = append(s.fields, fi)
		for _, k := range meta.keys() {
			prev, dup := s.byKey[k]
			if !dup || fi.depth < prev.depth {
				s.byKey[k] = fi
			}
		}
	}
	return nil
}

// reachable 报告沿 index 访问字段时是否不经过指针。
func reachable(t reflect.Type, index []int) bool {
	cur := t
	for _, idx := range index[:len(index)-1] {
		f := cur.Field(idx)
		if f.Type.Kind() != reflect.Struct {
			return false
		}
		cur = f.Type
	}
	return true
}

// resolveMeta 把标签/参数中的名称解析为类型和转换函数，并合并 Catalog 的成员级默认类型。
func (c *Catalog) resolveMeta(declaring reflect.Type, member string, memberTyp reflect.Type,
	key string, aliases []string, typeName, convName string) (memberMeta, error) {
	meta := memberMeta{key: key, aliases: aliases}

	if typeName != "" {
		t, ok := c.lookupName(typeName)
		if !ok {
			return meta, newError(ErrTypeMismatch, ReasonUnknownTypeName, "").
				detail(fmt.Sprintf("%s.%s: type %q is not registered", declaring, member, typeName))
		}
		if !assignableToMember(t, memberTyp) {
			return meta, newError(ErrTypeMismatch, ReasonTypeNotAssignable, "").
				expect(memberTyp, t).detail(fmt.Sprintf("%s.%s", declaring, member))
		}
		meta.defaultType = t
	} else if t := c.memberDefault(declaring, member); t != nil {
		meta.defaultType = t
	}

	if convName != "" {
		conv, ok := c.lookupNamedConverter(convName)
		if !ok {
			return meta, newError(ErrNullArgument, ReasonNullArgument, "").
				detail(fmt.Sprintf("%s.%s: converter %q is not registered", declaring, member, convName))
		}
		if !assignableToMember(conv.out, memberTyp) {
			return meta, newError(ErrTypeMismatch, ReasonTypeNotAssignable, "").
				expect(memberTyp, conv.out).detail(fmt.Sprintf("%s.%s", declaring, member))
		}
		meta.conv = conv
	}
	return meta, nil
}

// checkDefaultTypes 检查共享同一配置键的成员是否声明了不同的默认类型。
func (s *schema) checkDefaultTypes() error {
	declared := make(map[string]reflect.Type)
	check := func(meta *memberMeta) error {
		if meta.defaultType == nil {
			return nil
		}
		for _, k := range meta.keys() {
			prev, ok := declared[k]
			if ok && prev != meta.defaultType {
				return newError(ErrInconsistentMetadata, ReasonConflictingDefaultTypes, "").
					expect(prev, meta.defaultType).
					detail(fmt.Sprintf("%s: key %q", s.typ, meta.key))
			}
			declared[k] = meta.defaultType
		}
		return nil
	}
	for _, f := range s.fields {
		if err := check(&f.meta); err != nil {
			return err
		}
	}
	for _, ci := range s.ctors {
		for i := range ci.params {
			if err := check(&ci.params[i].meta); err != nil {
				return err
			}
		}
	}
	return nil
}

type tagOptions struct {
	aliases  []string
	typeName string
	convName string
}

// parseTag 解析 `name,alias=a|b,type=T,conv=C`。
func parseTag(tag string) (string, tagOptions) {
	var opts tagOptions
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch strings.ToLower(k) {
		case "alias":
			for _, a := range strings.Split(v, "|") {
				if a = strings.TrimSpace(a); a != "" {
					opts.aliases = append(opts.aliases, a)
				}
			}
		case "type":
			opts.typeName = strings.TrimSpace(v)
		case "conv":
			opts.convName = strings.TrimSpace(v)
		}
	}
	return name, opts
}
