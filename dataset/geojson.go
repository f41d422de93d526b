package dataset

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FromFeatureCollection converts the Point features of fc to items. The
// "title" and "snippet" properties become the label, other numeric
// properties become metrics and the rest metadata. A string feature ID that
// parses as a UUID is kept; otherwise a new ID is assigned.
func FromFeatureCollection(fc *geojson.FeatureCollection) ([]*Item, error) {
	items := make([]*Item, 0, len(fc.Features))

	for i, f := range fc.Features {
		point, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: geometry %T is not a point", i, f.Geometry)
		}

		item := &Item{
			ID:  featureID(f),
			Lat: point.Lat(),
			Lon: point.Lon(),
		}

		for k, v := range f.Properties {
			switch k {
			case "title":
				item.Title, _ = v.(string)
				continue
			case "snippet":
				item.Snippet, _ = v.(string)
				continue
			}

			if number, ok := v.(float64); ok {
				if item.Metrics == nil {
					item.Metrics = make(map[string]float32)
				}
				item.Metrics[k] = float32(number)
				continue
			}

			if item.Metadata == nil {
				item.Metadata = make(map[string]any)
			}
			item.Metadata[k] = v
		}

		items = append(items, item)
	}

	return items, nil
}

// ToFeatureCollection is the inverse of FromFeatureCollection.
func ToFeatureCollection(items []*Item) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, item := range items {
		f := geojson.NewFeature(orb.Point{item.Lon, item.Lat})
		f.ID = item.ID.String()

		if item.Title != "" {
			f.Properties["title"] = item.Title
		}
		if item.Snippet != "" {
			f.Properties["snippet"] = item.Snippet
		}
		for k, v := range item.Metrics {
			f.Properties[k] = float64(v)
		}
		for k, v := range item.Metadata {
			f.Properties[k] = v
		}

		fc.Append(f)
	}

	return fc
}

// DecodeGeoJSON parses a FeatureCollection of points.
func DecodeGeoJSON(data []byte) ([]*Item, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}
	return FromFeatureCollection(fc)
}

func LoadGeoJSON(filename string) ([]*Item, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return DecodeGeoJSON(raw)
}

func SaveGeoJSON(filename string, items []*Item) error {
	raw, err := ToFeatureCollection(items).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal feature collection: %w", err)
	}
	return os.WriteFile(filename, raw, 0644)
}

func featureID(f *geojson.Feature) uuid.UUID {
	if s, ok := f.ID.(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	return uuid.New()
}
