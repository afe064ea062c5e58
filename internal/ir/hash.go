package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-derived identity.
// Version suffix enables future algorithm migration.
const (
	DomainPrimaryKey = "ale/primary-key/v1"
	DomainSpec       = "ale/spec/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // separator prevents domain/data boundary ambiguity
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash returns a stable content hash of a definition (ECSpec or PCSpec).
// Used by the depot to detect changed definitions on restore.
func SpecHash(spec any) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("spec hash: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("spec hash: %w", err)
	}
	canonical, err := MarshalCanonical(normalizeNumbers(generic))
	if err != nil {
		return "", fmt.Errorf("spec hash: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// normalizeNumbers converts the float64 values produced by json.Unmarshal
// back to int64 and drops null members. Definitions contain integral
// numbers only.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case []any:
		for i := range val {
			val[i] = normalizeNumbers(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			if val[k] == nil {
				delete(val, k)
				continue
			}
			val[k] = normalizeNumbers(val[k])
		}
		return val
	default:
		return val
	}
}
