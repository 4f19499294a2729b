package xbind

import (
	"reflect"
	"sort"
	"strings"

	"github.com/omeyang/xbind/pkg/config/xconf"
)

// argSource 表示构造函数参数的取值来源。
type argSource int

const (
	argMissing argSource = iota
	argConfig
	argResolver
	argDefault
)

type argPlan struct {
	source argSource
	sec    xconf.Section
}

// candidate 是针对当前配置节点评估过的构造函数。
type candidate struct {
	ctor         *ctorInfo
	matched      int // 由配置键或解析器提供的参数数
	matchedNamed int // 由配置键提供的参数数
	plan         []argPlan
	missing      []string
}

// withoutDefaults 报告是否每个参数都已匹配。
func (c *candidate) withoutDefaults() bool {
	return c.matched == len(c.ctor.params)
}

// withDefaults 报告是否每个参数都已匹配或有缺省值。
func (c *candidate) withDefaults() bool {
	return len(c.missing) == 0
}

func (c *candidate) rank() int {
	switch {
	case c.withoutDefaults():
		return 0
	case c.withDefaults():
		return 1
	}
	return 2
}

// less 给出候选排序：可完全匹配优先于依赖缺省值，其次按命名匹配数、
// 总匹配数降序，参数更少者优先。稳定排序保证并列时保持登记顺序。
func (c *candidate) less(o *candidate) bool {
	if c.rank() != o.rank() {
		return c.rank() < o.rank()
	}
	if c.matchedNamed != o.matchedNamed {
		return c.matchedNamed > o.matchedNamed
	}
	if c.matched != o.matched {
		return c.matched > o.matched
	}
	return len(c.ctor.params) < len(o.ctor.params)
}

// evaluate 计算构造函数在当前节点上的匹配情况。
func (b *binder) evaluate(ci *ctorInfo, available map[string]xconf.Section) *candidate {
	c := &candidate{ctor: ci, plan: make([]argPlan, len(ci.params))}
	for i := range ci.params {
		p := &ci.params[i]
		if sec, ok := lookupKeys(available, p.meta.keys()); ok {
			c.plan[i] = argPlan{source: argConfig, sec: sec}
			c.matched++
			c.matchedNamed++
			continue
		}
		if b.res != nil && b.res.CanResolve(p.typ) {
			c.plan[i] = argPlan{source: argResolver}
			c.matched++
			continue
		}
		if p.hasDefault {
			c.plan[i] = argPlan{source: argDefault}
			continue
		}
		c.missing = append(c.missing, p.name)
	}
	return c
}

func lookupKeys(available map[string]xconf.Section, keys []string) (xconf.Section, bool) {
	for _, k := range keys {
		if sec, ok := available[k]; ok {
			return sec, true
		}
	}
	return nil, false
}

// selectConstructor 在对象的全部构造函数中选出排序最靠前的可调用者。
func (b *binder) selectConstructor(sch *schema, available map[string]xconf.Section, path string) (*candidate, error) {
	if len(sch.ctors) == 0 {
		return nil, newError(ErrConstructorResolution, ReasonNoPublicConstructorsFound, path).expect(sch.typ, nil)
	}
	cands := make([]*candidate, 0, len(sch.ctors))
	for _, ci := range sch.ctors {
		cands = append(cands, b.evaluate(ci, available))
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].less(cands[j]) })

	best := cands[0]
	if !best.withDefaults() {
		return nil, newError(ErrConstructorResolution, ReasonMissingRequiredConstructorParams, path).
			expect(sch.typ, nil).detail("missing " + strings.Join(best.missing, ", "))
	}
	return best, nil
}

// construct 按计划准备参数并调用构造函数，返回 *st。
// 由配置提供的参数键记入 consumed，不再绑定到字段。
func (b *binder) construct(c *candidate, st reflect.Type, path string, consumed map[string]bool) (reflect.Value, error) {
	ci := c.ctor
	args := make([]reflect.Value, len(ci.params))
	for i := range ci.params {
		p := &ci.params[i]
		plan := c.plan[i]
		switch plan.source {
		case argConfig:
			tg := target{typ: p.typ, declaring: st, member: p.name, meta: &p.meta}
			v, err := b.bind(newNode(plan.sec), tg, reflect.Value{})
			if err != nil {
				return reflect.Value{}, err
			}
			args[i] = v
			consumed[normalizeKey(plan.sec.Key())] = true
		case argResolver:
			v, err := b.resolveArg(p, path)
			if err != nil {
				return reflect.Value{}, err
			}
			args[i] = v
		default:
			args[i] = p.def
		}
	}

	out := ci.fn.Call(args)
	if ci.hasErr && !out[1].IsNil() {
		cause, _ := out[1].Interface().(error) //nolint:errcheck // 返回类型已检查
		return reflect.Value{}, newError(ErrConstructorResolution, ReasonConstructorFailed, path).
			expect(st, ci.out).wrap(cause)
	}
	return toPointer(out[0], reflect.PointerTo(st), path)
}

func (b *binder) resolveArg(p *paramInfo, path string) (reflect.Value, error) {
	val, err := b.res.Resolve(p.typ)
	if err != nil {
		return reflect.Value{}, newError(ErrConstructorResolution, ReasonConstructorFailed, path).
			expect(p.typ, nil).detail("resolve parameter " + p.name).wrap(err)
	}
	if val == nil {
		if isNilable(p.typ.Kind()) {
			return reflect.Zero(p.typ), nil
		}
		return reflect.Value{}, newError(ErrConstructorResolution, ReasonResultCannotBeNull, path).
			expect(p.typ, nil).detail("resolver returned nil for " + p.name)
	}
	return assignTo(reflect.ValueOf(val), p.typ, path)
}
