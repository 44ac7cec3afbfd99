package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/kindwall/internal/domain"
)

const aliceID = "550e8400-e29b-41d4-a716-446655440000"

func TestComputeDeterministic(t *testing.T) {
	in := Input{AuthorIdentity: aliceID, Content: "Hello", CreatedAt: "2025-01-01T10:00:00Z"}

	a := Compute(in)
	b := Compute(in)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, Prefix))
	assert.True(t, Valid(a), "computed fingerprint should be valid: %s", a)
}

func TestComputeSensitiveToEachField(t *testing.T) {
	base := Input{AuthorIdentity: aliceID, Content: "Hello", CreatedAt: "2025-01-01T10:00:00Z"}
	fp := Compute(base)

	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{name: "author", mutate: func(in *Input) { in.AuthorIdentity = "886313e1-3b8a-5372-9b90-0c9aee199e5d" }},
		{name: "content", mutate: func(in *Input) { in.Content = "Hello!" }},
		{name: "created_at", mutate: func(in *Input) { in.CreatedAt = "2025-01-01T10:00:01Z" }},
		{name: "image", mutate: func(in *Input) { in.Image = []byte{0x89, 'P', 'N', 'G'} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			assert.NotEqual(t, fp, Compute(in))
		})
	}
}

func TestComputeFieldBoundaries(t *testing.T) {
	// Shifting bytes between adjacent fields must not collide.
	a := Compute(Input{AuthorIdentity: aliceID, Content: "ab", CreatedAt: "c"})
	b := Compute(Input{AuthorIdentity: aliceID, Content: "a", CreatedAt: "bc"})
	assert.NotEqual(t, a, b)
}

func TestComputeIgnoresLocation(t *testing.T) {
	// The same logical post on two devices, with different local and origin
	// ids, shares a fingerprint because ids are not part of the input.
	deviceA := domain.Post{ID: 3, UserID: 1, Content: "World", CreatedAt: "2025-01-02T08:00:00Z"}
	deviceB := domain.Post{ID: 41, UserID: 17, Content: "World", CreatedAt: "2025-01-02T08:00:00Z"}

	fpA := Compute(Input{AuthorIdentity: aliceID, Content: deviceA.Content, CreatedAt: deviceA.CreatedAt})
	fpB := Compute(Input{AuthorIdentity: aliceID, Content: deviceB.Content, CreatedAt: deviceB.CreatedAt})

	assert.Equal(t, fpA, fpB)
}

func TestEmptyImageMatchesNoImage(t *testing.T) {
	in := Input{AuthorIdentity: aliceID, Content: "x", CreatedAt: "2025-01-01T00:00:00Z"}
	withEmpty := in
	withEmpty.Image = []byte{}
	assert.Equal(t, Compute(in), Compute(withEmpty))
}

func TestImageChecksum(t *testing.T) {
	sum := ImageChecksum([]byte("image-bytes"))
	assert.Len(t, sum, 64)
	assert.Equal(t, sum, ImageChecksum([]byte("image-bytes")))
	assert.NotEqual(t, sum, ImageChecksum([]byte("image-bytez")))
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("sha256:"+strings.Repeat("a", 64)))
	assert.False(t, Valid(Prefix+"abc"))
	assert.False(t, Valid(Prefix+strings.Repeat("z", 64)))
	assert.True(t, Valid(Prefix+strings.Repeat("0", 64)))
}

func TestPlaceholderIdentity(t *testing.T) {
	a := PlaceholderIdentity("laptop", 42)
	require.NoError(t, domain.ValidateSyncIdentity(a))

	assert.Equal(t, a, PlaceholderIdentity("laptop", 42), "placeholder must be deterministic")
	assert.NotEqual(t, a, PlaceholderIdentity("laptop", 43), "distinct authors stay distinct")
	assert.NotEqual(t, a, PlaceholderIdentity("desktop", 42), "same id on another device is another author")
}

func TestPlaceholderIdentityForName(t *testing.T) {
	a := PlaceholderIdentityForName("laptop", "carol")
	require.NoError(t, domain.ValidateSyncIdentity(a))

	assert.Equal(t, a, PlaceholderIdentityForName("laptop", "carol"))
	assert.NotEqual(t, a, PlaceholderIdentityForName("laptop", "dave"))
	assert.NotEqual(t, a, PlaceholderIdentity("laptop", 0))
}
