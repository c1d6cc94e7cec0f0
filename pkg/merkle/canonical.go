// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package merkle provides deterministic payload hashing and a balanced
// Merkle tree with inclusion proofs, used by the checkpoint and
// orchestrator packages to fingerprint node state.
package merkle

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalEncode produces a deterministic byte encoding of v: map keys are
// sorted, and the result is stable across repeated calls on an
// equal-but-differently-constructed value. Any JSON-marshalable value is
// accepted; no example repo in the corpus ships a canonical-JSON encoder,
// so this walks the decoded JSON tree by hand rather than trusting
// encoding/json's (undocumented, coincidentally stable) map ordering.
func CanonicalEncode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical encode: marshal: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical encode: unmarshal: %w", err)
	}

	var buf []byte
	buf, err = encodeValue(buf, generic)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func encodeValue(buf []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if t {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		enc, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, enc...), nil
	case float64:
		enc, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, enc...), nil
	case []any:
		buf = append(buf, '[')
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = encodeValue(buf, item)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyEnc, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyEnc...)
			buf = append(buf, ':')
			buf, err = encodeValue(buf, t[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return nil, fmt.Errorf("canonical encode: unsupported type %T", v)
	}
}

// HashPayload canonically encodes v and returns its SHA-256 digest.
func HashPayload(v any) ([32]byte, error) {
	enc, err := CanonicalEncode(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(enc), nil
}

// HashBytes is a convenience wrapper for hashing an already-encoded blob.
func HashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}
