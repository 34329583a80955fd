// Copyright 2025 Certen Protocol
//
// Canonical JSON + keccak256 reference computation for raw geometry
// inputs. Adapted from the service's SHA-256 canonicalizer to the
// keccak256 hash EAS attestations are built around.

package resolve

import (
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
)

// canonicalizeValue recursively sorts map keys; arrays retain order.
func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]keyValue, 0, len(vv))
		for _, k := range keys {
			ordered = append(ordered, keyValue{k, canonicalizeValue(vv[k])})
		}
		return orderedMap(ordered)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

type keyValue struct {
	key   string
	value interface{}
}

// orderedMap marshals as a JSON object preserving insertion order, since a
// plain Go map randomises iteration order on every Marshal call.
type orderedMap []keyValue

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, kv := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(kv.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// CanonicalJSON deep-sorts object keys and serialises without whitespace,
// so key order and formatting never change a geometry's reference.
func CanonicalJSON(raw json.RawMessage) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(canonicalizeValue(v))
}

// RefFor computes the keccak256 reference of a raw geometry's canonical
// JSON serialisation.
func RefFor(raw json.RawMessage) ([32]byte, error) {
	canon, err := CanonicalJSON(raw)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], crypto.Keccak256(canon))
	return out, nil
}
