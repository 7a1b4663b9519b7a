package compare

import (
	"github.com/sailmerge/sailmerge/pkg/canonical"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint hashes a canonical.View's content — the formatted code string
// concatenated with a stable JSON encoding of the structured payload, or the
// raw bytes for Unknown objects — into a 256-bit digest (spec.md §3:
// "any hash with ≥128 bits of output is acceptable"). A digest mismatch is
// authoritative for "different"; a match is authoritative for "identical".
func Fingerprint(v canonical.View) ([32]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, err
	}
	if v.RawXML != nil {
		_, _ = h.Write(v.RawXML)
	} else {
		_, _ = h.Write([]byte(v.Code))
		payload, err := canonical.StableJSON(v)
		if err != nil {
			return [32]byte{}, err
		}
		_, _ = h.Write(payload)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
