package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Cache key namespaces.
const (
	NamespaceSearch  = "search"
	NamespaceSimilar = "similar"
	NamespaceSummary = "summary"
)

// HashFilters returns a deterministic hex digest of v. Object keys are
// order-insensitive, and nil values, empty strings, empty arrays and empty
// objects are pruned, so {a:[1,2], b:nil} and {b:[], a:[1,2]} hash equally.
// Array element order is significant.
//
// An error means v cannot be represented as JSON; that is a caller bug.
func HashFilters(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "cache: marshal filters")
	}
	// Numbers stay literal so integers beyond 2^53 keep their identity.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", eris.Wrap(err, "cache: decode filters")
	}
	pruned, _ := prune(generic)

	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(pruned)
	if err != nil {
		return "", eris.Wrap(err, "cache: canonicalize filters")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Key builds "<namespace>:<HashFilters(v)>".
func Key(namespace string, v any) (string, error) {
	h, err := HashFilters(v)
	if err != nil {
		return "", err
	}
	return namespace + ":" + h, nil
}

// prune drops semantically empty values. The bool reports whether v itself
// is empty and should be dropped by its parent.
func prune(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return t, t == ""
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			// Nulls inside arrays keep their position.
			p, _ := prune(e)
			out = append(out, p)
		}
		return out, len(out) == 0
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if p, empty := prune(e); !empty {
				out[k] = p
			}
		}
		return out, len(out) == 0
	default:
		return t, false
	}
}
