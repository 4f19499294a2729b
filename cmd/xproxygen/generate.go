package main

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/imports"
)

const (
	xconfPath   = "github.com/omeyang/xbind/pkg/config/xconf"
	xreloadPath = "github.com/omeyang/xbind/pkg/config/xreload"
)

var (
	errNotInterface = errors.New("xproxygen: type is not an interface")
	errNotFound     = errors.New("xproxygen: type not found")
	errGeneric      = errors.New("xproxygen: generic interfaces are not supported")
	errNoMethods    = errors.New("xproxygen: interface has no methods")
)

// reservedMethods 是 *xreload.Proxy 的方法，能力接口中的同名方法会遮蔽它们。
var reservedMethods = map[string]bool{
	"Current":        true,
	"Generation":     true,
	"ForceReload":    true,
	"OnReloading":    true,
	"OnReloaded":     true,
	"OnReloadFailed": true,
	"Close":          true,
	"Closed":         true,
	"Section":        true,
}

// genConfig 是一次生成的参数。
type genConfig struct {
	Dir      string // 接口所在包的目录
	TypeName string // 接口名
	Name     string // 包装类型名，默认 <TypeName>Proxy
	Out      string // 输出文件名，默认 <typename>_proxy.go
}

func (c *genConfig) normalize() error {
	if c.TypeName == "" {
		return errors.New("xproxygen: -type is required")
	}
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Name == "" {
		c.Name = c.TypeName + "Proxy"
	}
	if c.Out == "" {
		c.Out = strings.ToLower(c.TypeName) + "_proxy.go"
	}
	if !filepath.IsAbs(c.Out) {
		c.Out = filepath.Join(c.Dir, c.Out)
	}
	if !token.IsIdentifier(c.Name) {
		return fmt.Errorf("xproxygen: invalid wrapper name %q", c.Name)
	}
	return nil
}

// result 是生成结果。
type result struct {
	Source   []byte
	Methods  int
	Shadowed []string // 遮蔽了代理方法的接口方法
}

// loadInterface 加载 dir 中的包并查找接口 name。
func loadInterface(dir, name string) (*types.Package, *types.Named, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedDeps | packages.NeedImports,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("xproxygen: load package: %w", err)
	}
	if len(pkgs) != 1 {
		return nil, nil, fmt.Errorf("xproxygen: expected one package in %s, found %d", dir, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		errs := make([]error, 0, len(pkg.Errors))
		for _, e := range pkg.Errors {
			errs = append(errs, e)
		}
		return nil, nil, fmt.Errorf("xproxygen: load package: %w", errors.Join(errs...))
	}
	named, err := lookupInterface(pkg.Types, name)
	if err != nil {
		return nil, nil, err
	}
	return pkg.Types, named, nil
}

func lookupInterface(pkg *types.Package, name string) (*types.Named, error) {
	obj := pkg.Scope().Lookup(name)
	if obj == nil {
		return nil, fmt.Errorf("%w: %s.%s", errNotFound, pkg.Path(), name)
	}
	tn, ok := obj.(*types.TypeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a type", errNotFound, name)
	}
	named, ok := tn.Type().(*types.Named)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotInterface, name)
	}
	if _, ok := named.Underlying().(*types.Interface); !ok {
		return nil, fmt.Errorf("%w: %s", errNotInterface, name)
	}
	if named.TypeParams().Len() > 0 {
		return nil, fmt.Errorf("%w: %s", errGeneric, name)
	}
	return named, nil
}

// =============================================================================
// 渲染
// =============================================================================

type importSpec struct {
	Alias string
	Path  string
}

type methodData struct {
	Name    string
	Params  string
	Args    string
	Results string
	Return  bool
}

type fileData struct {
	Package   string
	Interface string
	Name      string
	Imports   []importSpec
	Methods   []methodData
	// Inspectable 为 false 时接口遮蔽了代理方法，包装不再满足 xreload.Reloadable。
	Inspectable bool
}

// importSet 为生成文件分配包名，处理同名包。
type importSet struct {
	self   *types.Package
	byPath map[string]string
	used   map[string]bool
	specs  []importSpec
}

func newImportSet(self *types.Package) *importSet {
	s := &importSet{self: self, byPath: make(map[string]string), used: make(map[string]bool)}
	s.used["w"] = true
	s.add(xconfPath, "xconf")
	s.add(xreloadPath, "xreload")
	return s
}

func (s *importSet) add(path, name string) string {
	if alias, ok := s.byPath[path]; ok {
		return alias
	}
	alias := name
	for i := 2; s.used[alias]; i++ {
		alias = fmt.Sprintf("%s%d", name, i)
	}
	s.used[alias] = true
	s.byPath[path] = alias
	spec := importSpec{Path: path}
	if alias != name {
		spec.Alias = alias
	}
	s.specs = append(s.specs, spec)
	return alias
}

func (s *importSet) qualifier(p *types.Package) string {
	if p == s.self {
		return ""
	}
	return s.add(p.Path(), p.Name())
}

// render 生成 named 的转发包装源码。
func render(pkg *types.Package, named *types.Named, cfg genConfig) (*result, error) {
	iface, _ := named.Underlying().(*types.Interface) //nolint:errcheck // lookupInterface 已检查
	if iface.NumMethods() == 0 {
		return nil, fmt.Errorf("%w: %s", errNoMethods, named.Obj().Name())
	}

	imps := newImportSet(pkg)
	data := fileData{
		Package:   pkg.Name(),
		Interface: named.Obj().Name(),
		Name:      cfg.Name,
	}
	res := &result{}

	for m := range iface.Methods() {
		if !m.Exported() && m.Pkg() != pkg {
			return nil, fmt.Errorf("xproxygen: method %s is unexported in another package", m.Name())
		}
		if m.Name() == "Proxy" {
			return nil, fmt.Errorf("xproxygen: method %s conflicts with the embedded proxy field", m.Name())
		}
		if reservedMethods[m.Name()] {
			res.Shadowed = append(res.Shadowed, m.Name())
		}
		sig, _ := m.Type().(*types.Signature) //nolint:errcheck // 方法类型总是 *types.Signature
		data.Methods = append(data.Methods, methodFor(m.Name(), sig, imps.qualifier))
	}
	data.Imports = imps.specs
	data.Inspectable = len(res.Shadowed) == 0

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("xproxygen: render: %w", err)
	}
	src, err := imports.Process(cfg.Out, buf.Bytes(), &imports.Options{Comments: true, TabIndent: true, TabWidth: 8, FormatOnly: true})
	if err != nil {
		return nil, fmt.Errorf("xproxygen: format generated source: %w\n%s", err, buf.String())
	}
	res.Source = src
	res.Methods = len(data.Methods)
	return res, nil
}

func methodFor(name string, sig *types.Signature, q types.Qualifier) methodData {
	params := sig.Params()
	var decl, args []string
	for i := range params.Len() {
		p := params.At(i)
		argName := fmt.Sprintf("a%d", i)
		typ := types.TypeString(p.Type(), q)
		if sig.Variadic() && i == params.Len()-1 {
			slice, _ := p.Type().(*types.Slice) //nolint:errcheck // 变参总是切片
			typ = "..." + types.TypeString(slice.Elem(), q)
			args = append(args, argName+"...")
		} else {
			args = append(args, argName)
		}
		decl = append(decl, argName+" "+typ)
	}

	results := sig.Results()
	var out []string
	for i := range results.Len() {
		out = append(out, types.TypeString(results.At(i).Type(), q))
	}
	resStr := strings.Join(out, ", ")
	if len(out) > 1 {
		resStr = "(" + resStr + ")"
	}

	return methodData{
		Name:    name,
		Params:  strings.Join(decl, ", "),
		Args:    strings.Join(args, ", "),
		Results: resStr,
		Return:  len(out) > 0,
	}
}

var fileTemplate = template.Must(template.New("proxy").Parse(`// Code generated by xproxygen. DO NOT EDIT.

package {{.Package}}

import (
{{- range .Imports}}
	{{if .Alias}}{{.Alias}} {{end}}"{{.Path}}"
{{- end}}
)

// {{.Name}} 把 {{.Interface}} 的调用转发到热重载代理的当前实例。
// 每个方法在入口读取一次 Current()。
type {{.Name}} struct {
	*xreload.Proxy[{{.Interface}}]
}

var _ {{.Interface}} = {{.Name}}{}
{{- if .Inspectable}}

var _ xreload.Reloadable[{{.Interface}}] = {{.Name}}{}
{{- end}}

// New{{.Interface}}Proxy 从 sec 构建 {{.Interface}}，并在配置变化时热重载。
// 使用 xreload.Inspect 取回代理。
func New{{.Interface}}Proxy(sec xconf.Section, opts ...xreload.Option) ({{.Interface}}, error) {
	return xreload.Create(sec, func(p *xreload.Proxy[{{.Interface}}]) {{.Interface}} {
		return {{.Name}}{p}
	}, opts...)
}
{{range .Methods}}
func (w {{$.Name}}) {{.Name}}({{.Params}}) {{.Results}} {
	{{if .Return}}return {{end}}w.Current().{{.Name}}({{.Args}})
}
{{end}}`))
