// Package metadata assembles the descriptive metadata written alongside
// each session: embedded lab defaults, an optional user override file and
// per-channel series descriptions.
package metadata

import (
	"embed"
	"fmt"
	"os"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"gopkg.in/yaml.v3"
)

const templatePlane = "ImagingPlane"

//go:embed defaults/*.yaml
var defaultFiles embed.FS

var defaultOrder = []string{
	"defaults/general.yaml",
	"defaults/ophys.yaml",
	"defaults/fiber_photometry.yaml",
}

// Defaults returns the embedded defaults merged in order.
func Defaults() (map[string]any, error) {
	merged := map[string]any{}
	for _, name := range defaultOrder {
		raw, err := defaultFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		doc, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		merged = DeepUpdate(merged, doc)
	}
	return merged, nil
}

// Load returns the defaults, deep-updated with overridePath when set.
func Load(overridePath string) (map[string]any, error) {
	meta, err := Defaults()
	if err != nil {
		return nil, err
	}
	if overridePath == "" {
		return meta, nil
	}
	raw, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	override, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", overridePath, err)
	}
	return DeepUpdate(meta, override), nil
}

// Decode parses a YAML mapping.
func Decode(raw []byte) (map[string]any, error) {
	decoded := map[string]any{}
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return decoded, nil
}

// Encode renders metadata as YAML.
func Encode(meta map[string]any) ([]byte, error) {
	raw, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return raw, nil
}

// DeepUpdate returns dst with src merged in. Nested mappings are merged
// key by key; every other value in src replaces the one in dst. Neither
// argument is modified.
func DeepUpdate(dst, src map[string]any) map[string]any {
	out := Clone(dst)
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = DeepUpdate(dstMap, srcMap)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Clone deep-copies nested maps and slices.
func Clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// ForChannel adds the imaging plane, one-photon series and fiber photometry
// response series entries describing ch. Each channel gets its own plane,
// derived from the generic "ImagingPlane" template, which it replaces.
func ForChannel(meta map[string]any, ch model.WavelengthChannel, excitationMode string, rate float64) map[string]any {
	out := Clone(meta)
	ophys := childMap(out, "Ophys")

	planeName := ch.ImagingPlaneName()
	plane := channelPlane(ophys, planeName)
	plane["name"] = planeName
	plane["indicator"] = ch.Indicator
	plane["excitation_lambda"] = float64(ch.WavelengthNM)
	if rate > 0 {
		plane["imaging_rate"] = rate
	}

	ophys["OnePhotonSeries"] = append(listOf(ophys, "OnePhotonSeries"), map[string]any{
		"name": ch.PhotonSeriesName(),
		"description": fmt.Sprintf("Raw %s imaging of the fiber bundle, %d nm excitation (%s excitation).",
			ch.Indicator, ch.WavelengthNM, excitationMode),
		"imaging_plane": planeName,
		"unit":          "n.a.",
	})

	fp := childMap(ophys, "FiberPhotometry")
	fp["FiberPhotometryResponseSeries"] = append(listOf(fp, "FiberPhotometryResponseSeries"), map[string]any{
		"name":                        ch.ResponseSeriesName(),
		"description":                 fmt.Sprintf("Fluorescence of %s per fiber.", ch.Indicator),
		"indicator":                   ch.Indicator,
		"excitation_wavelength_in_nm": float64(ch.WavelengthNM),
		"unit":                        "a.u.",
	})
	return out
}

// channelPlane returns the plane entry named name, creating it from the
// generic template or, failing that, from the last plane in the list.
func channelPlane(ophys map[string]any, name string) map[string]any {
	planes := listOf(ophys, "ImagingPlane")
	template := -1
	for i, p := range planes {
		entry, ok := p.(map[string]any)
		if !ok {
			continue
		}
		switch entry["name"] {
		case name:
			return entry
		case templatePlane:
			template = i
		}
	}

	if template >= 0 {
		return planes[template].(map[string]any)
	}
	plane := map[string]any{}
	if n := len(planes); n > 0 {
		if last, ok := planes[n-1].(map[string]any); ok {
			plane = Clone(last)
		}
	}
	ophys["ImagingPlane"] = append(planes, plane)
	return plane
}

func childMap(m map[string]any, key string) map[string]any {
	child, ok := m[key].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[key] = child
	}
	return child
}

func listOf(m map[string]any, key string) []any {
	list, _ := m[key].([]any)
	return list
}
