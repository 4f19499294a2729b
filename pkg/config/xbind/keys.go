package xbind

import "strings"

// normalizeKey 把配置键和成员名归一化为匹配用的形式：
// 转为小写并去掉 '-'、'_'、'.' 和空格。
// "ThingOne"、"thingOne"、"thing-one"、"thing_one"、"thingone" 归一化结果相同。
func normalizeKey(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case '-', '_', '.', ' ':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// typeKey 是类型提示使用的保留键。
const typeKey = "type"

// valueKey 是类型提示节点中承载实际子树的保留键。
const valueKey = "value"
