package domain

import (
	"dario.cat/mergo"
)

// MergeMaps overlays overlay onto base without mutating either. Overlay
// values win; nested maps merge recursively; slices append.
func MergeMaps(base, overlay map[string]interface{}) (map[string]interface{}, error) {
	if len(base) == 0 {
		return copyMap(overlay), nil
	}
	if len(overlay) == 0 {
		return copyMap(base), nil
	}

	merged := copyMap(base)
	if err := mergo.Merge(&merged, overlay,
		mergo.WithOverride,
		mergo.WithAppendSlice); err != nil {
		return nil, NewValidationError("merge", err.Error())
	}
	return merged, nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
