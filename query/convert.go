package query

import "encoding/json"

// decodeAny converts a type-erased entry value into T. Fetches always
// store a genuine T in the entry, so the fast path is a direct type
// assertion; the JSON round trip runs for data rehydrated from the
// persisted cache file, which necessarily comes back as a generic
// map[string]any/[]any/etc. (§6 persisted query cache layout), and for any
// value of another type written through Client.SetQueryData.
func decodeAny[T any](raw any) (T, error) {
	var zero T
	if raw == nil {
		return zero, nil
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, err
	}
	return out, nil
}
