package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header is a parsed PCD header.
type Header struct {
	Version   string
	Fields    []string
	Size      []int
	Type      []string
	Count     []int
	Width     int
	Height    int
	Viewpoint string
	Points    int
	Data      Encoding
}

// PointSize returns the byte width of one point.
func (h *Header) PointSize() int {
	n := 0
	for i := range h.Size {
		n += h.Size[i] * h.Count[i]
	}
	return n
}

// File is a decoded PCD file. Data holds point-major binary points for the
// binary encodings and the raw text body for ascii.
type File struct {
	Header Header
	Data   []byte
}

// ReadHeader parses the header lines up to and including DATA.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	h := &Header{}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read PCD header: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, rest, _ := strings.Cut(line, " ")
		vals := strings.Fields(rest)
		switch key {
		case "VERSION":
			h.Version = rest
		case "FIELDS":
			h.Fields = vals
		case "SIZE":
			if h.Size, err = atoiAll(vals); err != nil {
				return nil, fmt.Errorf("SIZE: %w", err)
			}
		case "TYPE":
			h.Type = vals
		case "COUNT":
			if h.Count, err = atoiAll(vals); err != nil {
				return nil, fmt.Errorf("COUNT: %w", err)
			}
		case "WIDTH":
			if h.Width, err = strconv.Atoi(rest); err != nil {
				return nil, fmt.Errorf("WIDTH: %w", err)
			}
		case "HEIGHT":
			if h.Height, err = strconv.Atoi(rest); err != nil {
				return nil, fmt.Errorf("HEIGHT: %w", err)
			}
		case "VIEWPOINT":
			h.Viewpoint = strings.Join(vals, " ")
		case "POINTS":
			if h.Points, err = strconv.Atoi(rest); err != nil {
				return nil, fmt.Errorf("POINTS: %w", err)
			}
		case "DATA":
			enc, err := ParseEncoding(rest)
			if err != nil {
				return nil, err
			}
			h.Data = enc
			if len(h.Size) != len(h.Fields) || len(h.Type) != len(h.Fields) {
				return nil, fmt.Errorf("FIELDS, SIZE and TYPE lengths differ")
			}
			if h.Count == nil {
				h.Count = make([]int, len(h.Fields))
				for i := range h.Count {
					h.Count[i] = 1
				}
			}
			if len(h.Count) != len(h.Fields) {
				return nil, fmt.Errorf("FIELDS and COUNT lengths differ")
			}
			return h, nil
		default:
			return nil, fmt.Errorf("unknown PCD header line %q", line)
		}
	}
}

func atoiAll(vals []string) ([]int, error) {
	out := make([]int, len(vals))
	for i, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Read decodes a complete PCD file.
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	f := &File{Header: *h}
	switch h.Data {
	case ASCII, Binary:
		if f.Data, err = io.ReadAll(br); err != nil {
			return nil, err
		}
		if h.Data == Binary && len(f.Data) != h.Points*h.PointSize() {
			return nil, fmt.Errorf("binary body has %d bytes, want %d", len(f.Data), h.Points*h.PointSize())
		}
	case BinaryCompressed:
		var sizes [8]byte
		if _, err := io.ReadFull(br, sizes[:]); err != nil {
			return nil, fmt.Errorf("read compressed sizes: %w", err)
		}
		packed := make([]byte, binary.LittleEndian.Uint32(sizes[0:4]))
		if _, err := io.ReadFull(br, packed); err != nil {
			return nil, fmt.Errorf("read compressed body: %w", err)
		}
		raw, err := lzfDecompress(packed, int(binary.LittleEndian.Uint32(sizes[4:8])))
		if err != nil {
			return nil, err
		}
		if f.Data, err = pointMajor(raw, h); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// pointMajor is the inverse of fieldMajor for a header without padding.
func pointMajor(raw []byte, h *Header) ([]byte, error) {
	step := h.PointSize()
	if len(raw) != h.Points*step {
		return nil, fmt.Errorf("decompressed body has %d bytes, want %d", len(raw), h.Points*step)
	}
	out := make([]byte, len(raw))
	src, off := 0, 0
	for i := range h.Fields {
		cw := h.Size[i] * h.Count[i]
		for p := 0; p < h.Points; p++ {
			copy(out[p*step+off:], raw[src:src+cw])
			src += cw
		}
		off += cw
	}
	return out, nil
}
