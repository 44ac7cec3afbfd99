// Package fingerprint derives location-independent content fingerprints for
// wall posts and comments, and placeholder identities for unknown authors.
//
// A fingerprint covers the author's stable identity, the text content, the
// creation timestamp and the image checksum. Store-local row ids never take
// part, so the same logical record fingerprints identically on every device.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// Prefix tags fingerprint values with the hash algorithm
const Prefix = "blake3:"

// placeholderNamespace scopes placeholder identities so they never collide
// with identities minted for real users.
var placeholderNamespace = uuid.MustParse("6b1d3f0e-8c4a-5e2b-9f7d-2a4c6e8b0d13")

// Input is the set of fields a fingerprint is computed over
type Input struct {
	AuthorIdentity string // stable sync identity or placeholder identity
	Content        string
	CreatedAt      string // exact text form
	Image          []byte // optional
}

// Compute returns "blake3:<hex>" over a length-prefixed encoding of in.
func Compute(in Input) string {
	hasher := blake3.New(32, nil)

	writeField(hasher, "author", []byte(in.AuthorIdentity))
	writeField(hasher, "content", []byte(in.Content))
	writeField(hasher, "created_at", []byte(in.CreatedAt))
	if len(in.Image) > 0 {
		writeField(hasher, "image", []byte(ImageChecksum(in.Image)))
	}

	return Prefix + hex.EncodeToString(hasher.Sum(nil))
}

// ImageChecksum returns the hex BLAKE3 digest of an image payload
func ImageChecksum(image []byte) string {
	sum := blake3.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s has the shape of a fingerprint produced by Compute
func Valid(s string) bool {
	digest, ok := strings.CutPrefix(s, Prefix)
	if !ok || len(digest) != 64 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

// PlaceholderIdentity derives a deterministic identity for an author known
// only by the device that exported it and that device's local user id.
func PlaceholderIdentity(deviceLabel string, originUserID int64) string {
	name := deviceLabel + "/" + strconv.FormatInt(originUserID, 10)
	return uuid.NewSHA1(placeholderNamespace, []byte(name)).String()
}

// PlaceholderIdentityForName derives a deterministic identity for an author
// known only by display name on the exporting device.
func PlaceholderIdentityForName(deviceLabel, displayName string) string {
	return uuid.NewSHA1(placeholderNamespace, []byte(deviceLabel+"/name:"+displayName)).String()
}

func writeField(h *blake3.Hasher, name string, value []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(value)))
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(length[:])
	h.Write(value)
}
