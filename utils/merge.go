package utils

// MergeTree merges loaded over defaults recursively
// Loaded values win at the leaves; branches only present in defaults are kept.
// Neither input is modified.
func MergeTree(defaults, loaded map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults)+len(loaded))
	for k, v := range defaults {
		out[k] = copyValue(v)
	}
	for k, v := range loaded {
		lm, lok := v.(map[string]interface{})
		dm, dok := out[k].(map[string]interface{})
		if lok && dok {
			out[k] = MergeTree(dm, lm)
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return MergeTree(t, nil)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
