package domain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// NormalizeIdentity validates a 20-byte hex address and returns it in EIP-55
// checksum form. All-lowercase and all-uppercase inputs carry no checksum and
// are accepted; mixed-case input must already match its checksum.
func NormalizeIdentity(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", Invalid("identity", "must be 0x followed by 40 hex characters")
	}
	body := s[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", Invalid("identity", "must be 0x followed by 40 hex characters")
	}

	checksummed := checksum(strings.ToLower(body))
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && "0x"+body != checksummed {
		return "", Invalid("identity", "checksum mismatch")
	}
	return checksummed, nil
}

// SameIdentity compares two addresses ignoring case.
func SameIdentity(a, b string) bool {
	return strings.EqualFold(a, b)
}

func checksum(lower string) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}
