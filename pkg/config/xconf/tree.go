package xconf

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// node 是解析后的不可变配置树节点。
// 每次加载都会生成一棵新树，读路径无需加锁。
type node struct {
	key      string
	value    string
	hasValue bool
	children []*node
	index    map[string]*node // 小写键 -> 子节点
}

// child 不区分大小写地查找直接子节点。
func (n *node) child(key string) *node {
	if n == nil || n.index == nil {
		return nil
	}
	return n.index[strings.ToLower(key)]
}

// lookup 沿路径段逐级查找。
func (n *node) lookup(segments []string) *node {
	cur := n
	for _, seg := range segments {
		cur = cur.child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func (n *node) exists() bool {
	return n != nil && (n.hasValue || len(n.children) > 0)
}

// buildTree 将 koanf 的嵌套 map 转换为配置树。
// map 的键按字典序排列，保证 Children 顺序稳定；序列转换为 0..n-1 子节点。
func buildTree(raw map[string]any) *node {
	root := &node{}
	fillBranch(root, raw)
	return root
}

func fillBranch(n *node, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n.children = make([]*node, 0, len(keys))
	n.index = make(map[string]*node, len(keys))
	for _, k := range keys {
		n.addChild(newNode(k, m[k]))
	}
}

func (n *node) addChild(c *node) {
	if n.index == nil {
		n.index = make(map[string]*node)
	}
	lower := strings.ToLower(c.key)
	// 大小写不同的重复键只保留第一个
	if _, dup := n.index[lower]; dup {
		return
	}
	n.index[lower] = c
	n.children = append(n.children, c)
}

func newNode(key string, v any) *node {
	n := &node{key: key}
	switch val := v.(type) {
	case nil:
	case map[string]any:
		fillBranch(n, val)
	case map[any]any:
		converted := make(map[string]any, len(val))
		for k, item := range val {
			converted[fmt.Sprint(k)] = item
		}
		fillBranch(n, converted)
	case []any:
		n.children = make([]*node, 0, len(val))
		n.index = make(map[string]*node, len(val))
		for i, item := range val {
			n.addChild(newNode(strconv.Itoa(i), item))
		}
	default:
		n.value = scalarString(val)
		n.hasValue = true
	}
	return n
}

// scalarString 把解析器产生的标量还原为字符串叶子值。
func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	default:
		return fmt.Sprint(val)
	}
}

// splitPath 按分隔符拆分路径，忽略空段。
func splitPath(path, delim string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, delim)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
