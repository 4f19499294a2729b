package xreload

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xbind/pkg/config/xconf"
)

// 节点标记字节。
const (
	markBranch = 'b'
	markLeaf   = 's'
	markNull   = '~'
)

// fingerprint 计算节点子树的 64 位摘要，用于识别内容未变化的变更信号。
//
// Children 已按键排序，因此相同内容得到相同摘要。
// 叶子、空值（null）和分支使用不同的标记字节，避免 "a: ''" 与 "a: ~" 冲突；
// 键和值都带长度前缀，任何字符都不会与结构分隔混淆。
func fingerprint(sec xconf.Section) uint64 {
	d := xxhash.New()
	writeNode(d, sec)
	return d.Sum64()
}

func writeNode(d *xxhash.Digest, sec xconf.Section) {
	children := sec.Children()
	if len(children) > 0 {
		writeHeader(d, markBranch, len(children))
		for _, c := range children {
			writeString(d, c.Key())
			writeNode(d, c)
		}
		return
	}
	if v, ok := sec.Value(); ok {
		_, _ = d.Write([]byte{markLeaf})
		writeString(d, v)
		return
	}
	_, _ = d.Write([]byte{markNull})
}

func writeHeader(d *xxhash.Digest, mark byte, n int) {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64)
	buf = append(buf, mark)
	buf = binary.AppendUvarint(buf, uint64(n))
	_, _ = d.Write(buf)
}

func writeString(d *xxhash.Digest, s string) {
	var buf [binary.MaxVarintLen64]byte
	_, _ = d.Write(binary.AppendUvarint(buf[:0], uint64(len(s))))
	_, _ = d.WriteString(s)
}
