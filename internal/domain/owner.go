package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrOwnerShape reports an owner value outside the supported union of
// upstream shapes. It is a named rejection, not best-effort matching.
var ErrOwnerShape = errors.New("unsupported owner identifier shape")

// ownerIDFields are the id-like keys upstream systems use, in precedence order.
var ownerIDFields = []string{"$id", "id", "userId"}

// OwnerRef holds an owner identifier as delivered by upstream systems.
// Upstream data is duck typed: the same field arrives as a plain string,
// as an object carrying an id-like field, or as a singleton list wrapping
// either. The raw JSON is kept verbatim and interpreted on demand.
type OwnerRef struct {
	raw json.RawMessage
}

// NewOwnerRef wraps raw upstream JSON. A nil or empty value is accepted
// here and rejected at Normalize time.
func NewOwnerRef(raw json.RawMessage) OwnerRef {
	return OwnerRef{raw: raw}
}

// OwnerString is a convenience for the common case of a plain string id.
func OwnerString(id string) OwnerRef {
	raw, _ := json.Marshal(id)
	return OwnerRef{raw: raw}
}

func (o OwnerRef) MarshalJSON() ([]byte, error) {
	if len(o.raw) == 0 {
		return []byte("null"), nil
	}
	return o.raw, nil
}

func (o *OwnerRef) UnmarshalJSON(data []byte) error {
	o.raw = append(o.raw[:0], data...)
	return nil
}

// Normalize resolves the wrapped value to a single trimmed string.
// Supported shapes: string; object with an id-like field ($id, id, userId);
// singleton array wrapping either. Anything else fails with ErrOwnerShape.
func (o OwnerRef) Normalize() (string, error) {
	return normalizeOwner(o.raw, 0)
}

func normalizeOwner(raw json.RawMessage, depth int) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty value", ErrOwnerShape)
	}
	// Two container unwraps covers every shape upstream actually sends
	// (array-of-object being the deepest); anything beyond is rejected.
	if depth > 2 {
		return "", fmt.Errorf("%w: nesting too deep", ErrOwnerShape)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("%w: blank identifier", ErrOwnerShape)
		}
		return s, nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != 1 {
			return "", fmt.Errorf("%w: list of %d values", ErrOwnerShape, len(arr))
		}
		return normalizeOwner(arr[0], depth+1)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range ownerIDFields {
			if inner, ok := obj[key]; ok {
				return normalizeOwner(inner, depth+1)
			}
		}
		return "", fmt.Errorf("%w: object without an id field", ErrOwnerShape)
	}

	return "", fmt.Errorf("%w: %s", ErrOwnerShape, snippet(raw))
}

func snippet(raw json.RawMessage) string {
	const max = 32
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
