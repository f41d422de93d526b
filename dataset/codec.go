package dataset

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Binary layout, little endian:
//
//	magic "MCDS" | version uint16 | count uint32
//	per item: id [16]byte | lat float64 | lon float64 | title str | snippet str |
//	          nMetrics uint32 | (key str | value float32)* |
//	          nMetadata uint32 | (key str | json-value str)*
//
// where str is a uint32 length followed by the bytes.
const (
	magic         = "MCDS"
	formatVersion = 1

	maxStringLen = 1 << 24
)

var ErrBadFormat = errors.New("dataset: malformed item file")

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) uint16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.write(e.buf[:2])
}

func (e *encoder) uint32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) float32(v float32) {
	e.uint32(math.Float32bits(v))
}

func (e *encoder) float64(v float64) {
	binary.LittleEndian.PutUint64(e.buf[:8], math.Float64bits(v))
	e.write(e.buf[:8])
}

func (e *encoder) string(s string) {
	e.uint32(uint32(len(s)))
	e.write([]byte(s))
}

// encodeItems writes items in the binary layout. Map entries are written in
// key order so identical item sets produce identical files.
func encodeItems(w io.Writer, items []*Item) error {
	e := &encoder{w: w}

	e.write([]byte(magic))
	e.uint16(formatVersion)
	e.uint32(uint32(len(items)))

	for _, item := range items {
		e.write(item.ID[:])
		e.float64(item.Lat)
		e.float64(item.Lon)
		e.string(item.Title)
		e.string(item.Snippet)

		e.uint32(uint32(len(item.Metrics)))
		for _, k := range sortedKeys(item.Metrics) {
			e.string(k)
			e.float32(item.Metrics[k])
		}

		e.uint32(uint32(len(item.Metadata)))
		for _, k := range sortedKeys(item.Metadata) {
			value, err := json.Marshal(item.Metadata[k])
			if err != nil {
				return fmt.Errorf("failed to marshal metadata %q: %w", k, err)
			}
			e.string(k)
			e.string(string(value))
		}

		if e.err != nil {
			return e.err
		}
	}

	return e.err
}

type decoder struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (d *decoder) read(b []byte) {
	if d.err != nil {
		return
	}
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
}

func (d *decoder) uint16() uint16 {
	d.read(d.buf[:2])
	return binary.LittleEndian.Uint16(d.buf[:2])
}

func (d *decoder) uint32() uint32 {
	d.read(d.buf[:4])
	return binary.LittleEndian.Uint32(d.buf[:4])
}

func (d *decoder) float32() float32 {
	return math.Float32frombits(d.uint32())
}

func (d *decoder) float64() float64 {
	d.read(d.buf[:8])
	return math.Float64frombits(binary.LittleEndian.Uint64(d.buf[:8]))
}

func (d *decoder) string() string {
	n := d.uint32()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.err = fmt.Errorf("%w: string of %d bytes", ErrBadFormat, n)
		return ""
	}
	b := make([]byte, n)
	d.read(b)
	return string(b)
}

func decodeItems(r io.Reader) ([]*Item, error) {
	d := &decoder{r: r}

	var header [len(magic)]byte
	d.read(header[:])
	if d.err == nil && string(header[:]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadFormat, header[:])
	}
	if version := d.uint16(); d.err == nil && version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, version)
	}
	count := d.uint32()
	if d.err != nil {
		return nil, d.err
	}

	items := make([]*Item, 0, min(count, 1<<20))
	for i := uint32(0); i < count; i++ {
		item := &Item{}

		var id [16]byte
		d.read(id[:])
		item.ID = uuid.UUID(id)
		item.Lat = d.float64()
		item.Lon = d.float64()
		item.Title = d.string()
		item.Snippet = d.string()

		if n := d.uint32(); n > 0 && d.err == nil {
			item.Metrics = make(map[string]float32, min(n, 64))
			for j := uint32(0); j < n && d.err == nil; j++ {
				k := d.string()
				item.Metrics[k] = d.float32()
			}
		}

		if n := d.uint32(); n > 0 && d.err == nil {
			item.Metadata = make(map[string]any, min(n, 64))
			for j := uint32(0); j < n && d.err == nil; j++ {
				k := d.string()
				raw := d.string()
				if d.err != nil {
					break
				}
				var value any
				if err := json.Unmarshal([]byte(raw), &value); err != nil {
					return nil, fmt.Errorf("%w: metadata %q: %v", ErrBadFormat, k, err)
				}
				item.Metadata[k] = value
			}
		}

		if d.err != nil {
			return nil, fmt.Errorf("item %d: %w", i, d.err)
		}
		items = append(items, item)
	}

	return items, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
