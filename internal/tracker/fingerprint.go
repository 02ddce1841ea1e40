package tracker

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/spaolacci/murmur3"
)

// Fingerprint identifies a raw line. The occurrence index keeps repeated
// identical lines apart while a re-fetch of the same feed maps to the same
// fingerprints.
func Fingerprint(line []byte, occurrence int) string {
	h := murmur3.New128()
	_, _ = h.Write(line)

	var occ [8]byte
	binary.BigEndian.PutUint64(occ[:], uint64(occurrence))
	_, _ = h.Write(occ[:])

	return hex.EncodeToString(h.Sum(nil))
}

// Revision is a short content hash used to key caches on a feed body.
func Revision(body []byte) string {
	h1, h2 := murmur3.Sum128(body)
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], h1)
	binary.BigEndian.PutUint64(b[8:], h2)
	return hex.EncodeToString(b[:])
}
