package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MMapWriter writes sequentially into a memory-mapped region.
type MMapWriter struct {
	data   mmap.MMap
	offset int
}

func NewMMapWriter(data mmap.MMap) *MMapWriter {
	return &MMapWriter{data: data}
}

func (w *MMapWriter) Write(b []byte) (int, error) {
	if len(b) > len(w.data)-w.offset {
		return 0, io.ErrShortWrite
	}
	n := copy(w.data[w.offset:], b)
	w.offset += n
	return n, nil
}

// MMapReader reads sequentially from a memory-mapped region.
type MMapReader struct {
	data   mmap.MMap
	offset int
}

func NewMMapReader(data mmap.MMap) *MMapReader {
	return &MMapReader{data: data}
}

func (r *MMapReader) Read(b []byte) (int, error) {
	if r.offset >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(b, r.data[r.offset:])
	r.offset += n
	return n, nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	c.n += int64(len(b))
	return len(b), nil
}

// SaveMMap writes items to filename as uncompressed binary through a memory
// map sized to the encoded length.
func SaveMMap(filename string, items []*Item) (err error) {
	var size countingWriter
	if err := encodeItems(&size, items); err != nil {
		return fmt.Errorf("failed to size items: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := file.Truncate(size.n); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}

	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	defer func() {
		err = errors.Join(err, mmapData.Unmap())
	}()

	if err := encodeItems(NewMMapWriter(mmapData), items); err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	if err := mmapData.Flush(); err != nil {
		return fmt.Errorf("failed to flush mmap: %w", err)
	}
	return nil
}

// LoadMMap reads a file written by SaveMMap.
func LoadMMap(filename string) (items []*Item, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrBadFormat)
	}

	mmapData, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}
	defer func() {
		err = errors.Join(err, mmapData.Unmap())
	}()

	items, err = decodeItems(NewMMapReader(mmapData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	return items, nil
}
