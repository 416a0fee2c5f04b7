package pointcloud

import (
	"errors"
	"fmt"
)

// LZF parameters, compatible with liblzf as used by PCL's
// binary_compressed encoding.
const (
	lzfHashLog = 14
	lzfMaxOff  = 1 << 13
	lzfMaxRef  = (1 << 8) + (1 << 3)
	lzfMaxLit  = 1 << 5
)

func lzfHash(b []byte, i int) uint32 {
	v := uint32(b[i])<<16 | uint32(b[i+1])<<8 | uint32(b[i+2])
	return (v * 2654435761) >> (32 - lzfHashLog)
}

// lzfCompress compresses in with a greedy single-probe matcher. Incompressible
// input grows by one byte per 32 literals.
func lzfCompress(in []byte) []byte {
	out := make([]byte, 0, len(in)+len(in)/lzfMaxLit+1)
	var table [1 << lzfHashLog]int32

	lit := 0
	flush := func(end int) {
		for lit < end {
			n := end - lit
			if n > lzfMaxLit {
				n = lzfMaxLit
			}
			out = append(out, byte(n-1))
			out = append(out, in[lit:lit+n]...)
			lit += n
		}
	}

	ip := 0
	for ip+2 < len(in) {
		h := lzfHash(in, ip)
		ref := int(table[h]) - 1
		table[h] = int32(ip + 1)
		off := ip - ref - 1
		if ref < 0 || off >= lzfMaxOff || in[ref] != in[ip] || in[ref+1] != in[ip+1] || in[ref+2] != in[ip+2] {
			ip++
			continue
		}

		maxLen := len(in) - ip
		if maxLen > lzfMaxRef {
			maxLen = lzfMaxRef
		}
		n := 3
		for n < maxLen && in[ref+n] == in[ip+n] {
			n++
		}

		flush(ip)
		l := n - 2
		if l < 7 {
			out = append(out, byte(l<<5|off>>8))
		} else {
			out = append(out, byte(7<<5|off>>8), byte(l-7))
		}
		out = append(out, byte(off))
		ip += n
		lit = ip
	}
	flush(len(in))
	return out
}

var errLZFCorrupt = errors.New("lzf: corrupt input")

// lzfDecompress expands in, which must decode to exactly size bytes.
func lzfDecompress(in []byte, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for ip := 0; ip < len(in); {
		ctrl := int(in[ip])
		ip++
		if ctrl < lzfMaxLit {
			n := ctrl + 1
			if ip+n > len(in) || len(out)+n > size {
				return nil, errLZFCorrupt
			}
			out = append(out, in[ip:ip+n]...)
			ip += n
			continue
		}
		l := ctrl >> 5
		if l == 7 {
			if ip >= len(in) {
				return nil, errLZFCorrupt
			}
			l += int(in[ip])
			ip++
		}
		if ip >= len(in) {
			return nil, errLZFCorrupt
		}
		ref := len(out) - (ctrl&0x1f)<<8 - int(in[ip]) - 1
		ip++
		if ref < 0 || len(out)+l+2 > size {
			return nil, errLZFCorrupt
		}
		for i := 0; i < l+2; i++ {
			out = append(out, out[ref+i])
		}
	}
	if len(out) != size {
		return nil, fmt.Errorf("lzf: decoded %d bytes, want %d", len(out), size)
	}
	return out, nil
}
