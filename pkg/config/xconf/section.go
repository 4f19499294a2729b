package xconf

import "strings"

// section 是 Section 的实现。
//
// pinned 为 nil 时是实时视图：每次访问都读取配置当前的树；
// Snapshot 返回的视图固定在某一棵树上。
type section struct {
	cfg      *koanfConfig
	segments []string
	pinned   *node
}

var _ Section = (*section)(nil)

func (s *section) root() *node {
	if s.pinned != nil {
		return s.pinned
	}
	return s.cfg.state.Load().tree
}

func (s *section) node() *node {
	return s.root().lookup(s.segments)
}

// Key 返回最后一段路径。
func (s *section) Key() string {
	if len(s.segments) == 0 {
		return ""
	}
	return s.segments[len(s.segments)-1]
}

// Path 返回完整路径。
func (s *section) Path() string {
	return strings.Join(s.segments, s.cfg.opts.Delim)
}

// Value 返回叶子值。
func (s *section) Value() (string, bool) {
	n := s.node()
	if n == nil || !n.hasValue {
		return "", false
	}
	return n.value, true
}

// Exists 报告节点是否存在。
func (s *section) Exists() bool {
	return s.node().exists()
}

// Get 返回相对路径的叶子值。
func (s *section) Get(key string) (string, bool) {
	return s.Section(key).Value()
}

// Section 返回相对路径的子视图。
func (s *section) Section(key string) Section {
	return s.child(splitPath(key, s.cfg.opts.Delim)...)
}

func (s *section) child(rel ...string) *section {
	segments := make([]string, 0, len(s.segments)+len(rel))
	segments = append(segments, s.segments...)
	segments = append(segments, rel...)
	return &section{cfg: s.cfg, segments: segments, pinned: s.pinned}
}

// Children 返回直接子节点。
// 子节点的路径段使用配置中的原始键名。
func (s *section) Children() []Section {
	n := s.node()
	if n == nil || len(n.children) == 0 {
		return nil
	}
	out := make([]Section, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, s.child(c.key))
	}
	return out
}

// Snapshot 固定到当前树。
func (s *section) Snapshot() Section {
	return &section{cfg: s.cfg, segments: s.segments, pinned: s.root()}
}

// ReloadToken 返回所属配置的当前令牌。
func (s *section) ReloadToken() ChangeToken {
	return s.cfg.ReloadToken()
}
