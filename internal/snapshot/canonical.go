package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON produces a deterministic JSON encoding:
// - Object keys sorted lexicographically
// - Records kept in document order
// - No insignificant whitespace, no HTML escaping
// - Optional empty fields omitted
func CanonicalJSON(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(buildOrderedDocument(d)); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Remove trailing newline added by Encode
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}

	return result, nil
}

// ComputeSnapshotRev computes the sha256 hash of canonical JSON bytes.
// Returns "sha256:<hex>" format.
func ComputeSnapshotRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// ContentRev returns the revision of a document's wall content. The export
// date and the stored revision do not take part, so re-exporting an
// unchanged wall yields the same revision.
func ContentRev(d *Document) (string, error) {
	stripped := *d
	stripped.ExportDate = ""
	stripped.Metadata.SnapshotRev = ""

	data, err := CanonicalJSON(&stripped)
	if err != nil {
		return "", err
	}
	return ComputeSnapshotRev(data), nil
}

// PrettyJSON produces human-readable indented JSON with canonical key order.
func PrettyJSON(d *Document) ([]byte, error) {
	data, err := CanonicalJSON(d)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent snapshot: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// orderedMap is a slice of key-value pairs that marshals as a JSON object
// with keys in the order they appear in the slice.
type orderedMap []keyValue

type keyValue struct {
	Key   string
	Value interface{}
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, kv := range om {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := marshalNoEscape(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	if om, ok := v.(orderedMap); ok {
		return om.MarshalJSON()
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Order: comments, export_date, export_device, metadata, posts, version
func buildOrderedDocument(d *Document) orderedMap {
	comments := make([]orderedMap, 0, len(d.Comments))
	for i := range d.Comments {
		comments = append(comments, buildOrderedComment(&d.Comments[i]))
	}
	posts := make([]orderedMap, 0, len(d.Posts))
	for i := range d.Posts {
		posts = append(posts, buildOrderedPost(&d.Posts[i]))
	}

	result := make(orderedMap, 0, 6)
	result = append(result, keyValue{"comments", comments})
	if d.ExportDate != "" {
		result = append(result, keyValue{"export_date", d.ExportDate})
	}
	result = append(result, keyValue{"export_device", d.ExportDevice})
	result = append(result, keyValue{"metadata", buildOrderedMetadata(&d.Metadata)})
	result = append(result, keyValue{"posts", posts})
	result = append(result, keyValue{"version", d.Version})
	return result
}

func buildOrderedMetadata(m *Metadata) orderedMap {
	result := make(orderedMap, 0, 4)

	// Fields in lexicographic order
	result = append(result, keyValue{"format_version", m.FormatVersion})
	if m.SnapshotRev != "" {
		result = append(result, keyValue{"snapshot_rev", m.SnapshotRev})
	}
	result = append(result, keyValue{"total_comments", m.TotalComments})
	result = append(result, keyValue{"total_posts", m.TotalPosts})

	return result
}

func buildOrderedAuthor(a *Author) orderedMap {
	result := make(orderedMap, 0, 6)

	// Fields in lexicographic order
	if a.Avatar != "" {
		result = append(result, keyValue{"avatar", a.Avatar})
	}
	if a.Bio != "" {
		result = append(result, keyValue{"bio", a.Bio})
	}
	if a.DeviceLabel != "" {
		result = append(result, keyValue{"device_label", a.DeviceLabel})
	}
	result = append(result, keyValue{"display_name", a.DisplayName})
	if a.OriginUserID != nil {
		result = append(result, keyValue{"origin_user_id", *a.OriginUserID})
	}
	if a.StableIdentity != "" {
		result = append(result, keyValue{"stable_identity", a.StableIdentity})
	}

	return result
}

func buildOrderedPost(p *PostRecord) orderedMap {
	result := make(orderedMap, 0, 9)

	// Fields in lexicographic order
	result = append(result, keyValue{"author", buildOrderedAuthor(&p.Author)})
	result = append(result, keyValue{"content", p.Content})
	result = append(result, keyValue{"created_at", p.CreatedAt})
	if p.Fingerprint != "" {
		result = append(result, keyValue{"fingerprint", p.Fingerprint})
	}
	if len(p.Image) > 0 {
		result = append(result, keyValue{"image", base64.StdEncoding.EncodeToString(p.Image)})
	}
	result = append(result, keyValue{"is_anonymous", p.IsAnonymous})
	if len(p.LikedBy) > 0 {
		result = append(result, keyValue{"liked_by", sortedCopy(p.LikedBy)})
	}
	result = append(result, keyValue{"likes", p.Likes})
	result = append(result, keyValue{"origin_id", p.OriginID})

	return result
}

func buildOrderedComment(c *CommentRecord) orderedMap {
	result := make(orderedMap, 0, 11)

	// Fields in lexicographic order
	result = append(result, keyValue{"author", buildOrderedAuthor(&c.Author)})
	result = append(result, keyValue{"content", c.Content})
	result = append(result, keyValue{"created_at", c.CreatedAt})
	if c.Fingerprint != "" {
		result = append(result, keyValue{"fingerprint", c.Fingerprint})
	}
	result = append(result, keyValue{"is_anonymous", c.IsAnonymous})
	if len(c.LikedBy) > 0 {
		result = append(result, keyValue{"liked_by", sortedCopy(c.LikedBy)})
	}
	result = append(result, keyValue{"likes", c.Likes})
	result = append(result, keyValue{"origin_id", c.OriginID})
	if c.ParentFingerprint != "" {
		result = append(result, keyValue{"parent_fingerprint", c.ParentFingerprint})
	}
	result = append(result, keyValue{"parent_origin_post_id", c.ParentOriginPostID})

	return result
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
