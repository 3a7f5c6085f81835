// Package filters implements the four concrete image filters named by the
// task system's filter descriptors: blur, brightness, edges, and grayscale.
// Each is a value type — construction validates parameters once, Apply never
// mutates the receiver, so a Filter is safe to share across concurrent
// pipelines.
package filters

import (
	"encoding/json"
	"fmt"
	"image"
)

// Filter is a pure image-to-image transform identified by a type tag.
type Filter interface {
	// Type returns the wire type name ("blur", "brightness", "edges",
	// "grayscale").
	Type() string
	// Apply runs the transform, returning a new image. It must not mutate
	// src.
	Apply(src image.Image) (image.Image, error)
	// String renders the canonical "TypeName(param=value,...)" form used in
	// pipeline stats.
	String() string
}

// Descriptor is the wire shape of a filter: a mandatory type tag plus
// filter-specific parameters.
type Descriptor struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"-"`
}

// UnmarshalJSON accepts {"type": "...", ...extra fields} by flattening
// everything except "type" into Params, matching the wire format in
// SPEC_FULL.md §3.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, _ := raw["type"].(string)
	if t == "" {
		return fmt.Errorf("filters: descriptor missing required \"type\" field")
	}
	delete(raw, "type")
	d.Type = t
	d.Params = raw
	return nil
}

// MarshalJSON re-flattens Params alongside the type tag.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Params)+1)
	for k, v := range d.Params {
		out[k] = v
	}
	out["type"] = d.Type
	return json.Marshal(out)
}

// NormalizeName rewrites a bare string filter name ("blur") into a
// Descriptor{Type: "blur"}, per the façade's acceptance of both shapes
// (spec.md §9 open question, §6 submission API).
func NormalizeName(name string) Descriptor {
	return Descriptor{Type: name}
}

const (
	TypeBlur       = "blur"
	TypeBrightness = "brightness"
	TypeEdges      = "edges"
	TypeGrayscale  = "grayscale"
	TypeGray       = "gray" // alias for grayscale
)
