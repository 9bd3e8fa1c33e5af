package domain

// DeepMerge merges src into dst recursively and returns dst. For each key in
// src: when both sides are maps, the merge recurses; otherwise the src value
// replaces the dst value wholesale. Arrays and scalars are leaves — replaced,
// never concatenated. Type conflicts resolve by replacement at the leaf.
//
// dst is mutated in place (a nil dst gets a fresh map). Values taken from src
// are deep-copied so later mutation of src cannot alias into dst.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				dst[k] = DeepMerge(dm, sm)
				continue
			}
		}
		dst[k] = DeepCopyValue(sv)
	}
	return dst
}

// DeepCopyMap returns a recursive copy of a JSON-shaped map.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = DeepCopyValue(v)
	}
	return cp
}

// DeepCopyValue copies JSON-shaped values (maps, slices, scalars). Scalars
// and unrecognized types are returned as-is.
func DeepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return DeepCopyMap(tv)
	case []any:
		cp := make([]any, len(tv))
		for i, e := range tv {
			cp[i] = DeepCopyValue(e)
		}
		return cp
	case []string:
		return append([]string(nil), tv...)
	default:
		return v
	}
}
