package frame

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Field names one column and its kind.
type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is the ordered column layout of a frame.
type Schema []Field

func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Equal reports whether both schemas have the same columns, kinds and order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Without returns the schema minus the named fields.
func (s Schema) Without(names ...string) Schema {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make(Schema, 0, len(s))
	for _, f := range s {
		if !drop[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// Fingerprint is a stable hash of the schema, used to version-match artifacts.
func (s Schema) Fingerprint() string {
	h := sha256.New()
	for _, f := range s {
		fmt.Fprintf(h, "%s:%s;", f.Name, f.Kind)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + " " + f.Kind.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, c := range []Kind{Float, Int, String, Time, Bool} {
		if c.String() == s {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown column kind %q", s)
}
