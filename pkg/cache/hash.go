package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// GenerateKey returns a deterministic key for args.
//
// Strings are trimmed and lower-cased; slices of strings are normalized the
// same way and sorted; other values are JSON encoded (maps encode with
// sorted keys). The normalized parts are joined with "|" and hashed with
// SHA-256, so semantically equal input always yields the same key.
func GenerateKey(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, normalizePart(a))
	}
	return Hash([]byte(strings.Join(parts, "|")))
}

func normalizePart(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = strings.ToLower(strings.TrimSpace(s))
		}
		slices.Sort(out)
		data, _ := json.Marshal(out)
		return string(data)
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(x.String()))
	}
	if reflect.TypeOf(v).Kind() == reflect.Map {
		// encoding/json sorts map keys.
		data, _ := json.Marshal(v)
		return string(data)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...interface{}) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
