package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Format is a dataset file format, selected by file extension.
type Format string

const (
	FormatCompressed Format = "zst"
	FormatMMap       Format = "bin"
	FormatGeoJSON    Format = "geojson"
)

var ErrUnknownFormat = errors.New("dataset: unknown file format")

// FormatOf returns the format implied by the extension of filename.
func FormatOf(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zst":
		return FormatCompressed, nil
	case ".bin":
		return FormatMMap, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filename)
}

// Load reads an item set in the format implied by the file extension.
func Load(filename string) ([]*Item, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCompressed:
		return LoadCompressed(filename)
	case FormatMMap:
		return LoadMMap(filename)
	default:
		return LoadGeoJSON(filename)
	}
}

// Save writes an item set in the format implied by the file extension.
func Save(filename string, items []*Item) error {
	format, err := FormatOf(filename)
	if err != nil {
		return err
	}

	switch format {
	case FormatCompressed:
		return SaveCompressed(filename, items)
	case FormatMMap:
		return SaveMMap(filename, items)
	default:
		return SaveGeoJSON(filename, items)
	}
}

type Info struct {
	Name     string    `json:"name"`
	Format   Format    `json:"format"`
	FileSize int64     `json:"fileSize"`
	Modified time.Time `json:"modified"`
}

// List returns the dataset files in dir, newest first. Files with an unknown
// extension are skipped.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	datasets := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, err := FormatOf(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}

		datasets = append(datasets, Info{
			Name:     entry.Name(),
			Format:   format,
			FileSize: info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(datasets, func(i, j int) bool {
		if !datasets[i].Modified.Equal(datasets[j].Modified) {
			return datasets[i].Modified.After(datasets[j].Modified)
		}
		return datasets[i].Name < datasets[j].Name
	})

	return datasets, nil
}

// Resolve joins name to dir, refusing names that would escape dir.
func Resolve(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid dataset name %q", name)
	}
	return filepath.Join(dir, name), nil
}
