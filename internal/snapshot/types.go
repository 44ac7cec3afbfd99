// Package snapshot exports the kindness wall to a self-contained document and
// merges such documents from other installations into the local store.
package snapshot

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/fingerprint"
	"github.com/lherron/kindwall/internal/identity"
)

// FormatVersion is the snapshot format written by this build. Documents with
// the same major version are accepted.
const FormatVersion = "2.0"

// Document is a snapshot of one installation's wall.
type Document struct {
	Version      string          `json:"version" validate:"required"`
	ExportDate   string          `json:"export_date"`
	ExportDevice string          `json:"export_device"`
	Posts        []PostRecord    `json:"posts" validate:"required"`
	Comments     []CommentRecord `json:"comments"`
	Metadata     Metadata        `json:"metadata"`
}

// Metadata summarizes a document.
type Metadata struct {
	TotalPosts    int    `json:"total_posts" validate:"gte=0"`
	TotalComments int    `json:"total_comments" validate:"gte=0"`
	FormatVersion string `json:"format_version"`
	SnapshotRev   string `json:"snapshot_rev,omitempty"`
}

// Author is the portable identity bundle carried by every record.
type Author struct {
	DisplayName    string `json:"display_name"`
	StableIdentity string `json:"stable_identity,omitempty" validate:"omitempty,syncid"`
	DeviceLabel    string `json:"device_label,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	Bio            string `json:"bio,omitempty"`
	OriginUserID   *int64 `json:"origin_user_id,omitempty"`
}

// Bundle converts the record author to a resolver input.
func (a Author) Bundle() identity.AuthorBundle {
	return identity.AuthorBundle{
		DisplayName:    a.DisplayName,
		StableIdentity: a.StableIdentity,
		DeviceLabel:    a.DeviceLabel,
		Avatar:         a.Avatar,
		Bio:            a.Bio,
		OriginUserID:   a.OriginUserID,
	}
}

// PostRecord is one exported post. OriginID is the exporting store's local id.
type PostRecord struct {
	OriginID    int64    `json:"origin_id" validate:"gt=0"`
	Content     string   `json:"content" validate:"required"`
	Image       []byte   `json:"image,omitempty"`
	CreatedAt   string   `json:"created_at" validate:"required,timestamp"`
	Likes       int64    `json:"likes" validate:"gte=0"`
	IsAnonymous bool     `json:"is_anonymous"`
	Fingerprint string   `json:"fingerprint,omitempty" validate:"omitempty,fingerprint"`
	LikedBy     []string `json:"liked_by,omitempty" validate:"omitempty,dive,syncid"`
	Author      Author   `json:"author"`

	decodeErr error
}

// CommentRecord is one exported comment. ParentOriginPostID refers to a
// PostRecord.OriginID of the same document.
type CommentRecord struct {
	OriginID           int64    `json:"origin_id" validate:"gt=0"`
	ParentOriginPostID int64    `json:"parent_origin_post_id" validate:"gt=0"`
	ParentFingerprint  string   `json:"parent_fingerprint,omitempty" validate:"omitempty,fingerprint"`
	Content            string   `json:"content" validate:"required"`
	CreatedAt          string   `json:"created_at" validate:"required,timestamp"`
	Likes              int64    `json:"likes" validate:"gte=0"`
	IsAnonymous        bool     `json:"is_anonymous"`
	Fingerprint        string   `json:"fingerprint,omitempty" validate:"omitempty,fingerprint"`
	LikedBy            []string `json:"liked_by,omitempty" validate:"omitempty,dive,syncid"`
	Author             Author   `json:"author"`

	decodeErr error
}

// UnmarshalJSON decodes a post record, deferring type errors to Validate so
// one malformed record never rejects the whole document.
func (p *PostRecord) UnmarshalJSON(data []byte) error {
	type plain PostRecord
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		*p = PostRecord{OriginID: peekOriginID(data), decodeErr: err}
		return nil
	}
	*p = PostRecord(v)
	return nil
}

// UnmarshalJSON decodes a comment record, deferring type errors to Validate.
func (c *CommentRecord) UnmarshalJSON(data []byte) error {
	type plain CommentRecord
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		*c = CommentRecord{OriginID: peekOriginID(data), decodeErr: err}
		return nil
	}
	*c = CommentRecord(v)
	return nil
}

// Validate checks required fields and formats of a post record.
func (p *PostRecord) Validate() error {
	if p.decodeErr != nil {
		return p.decodeErr
	}
	return recordValidate.Struct(p)
}

// Validate checks required fields and formats of a comment record.
func (c *CommentRecord) Validate() error {
	if c.decodeErr != nil {
		return c.decodeErr
	}
	return recordValidate.Struct(c)
}

// EffectiveFingerprint returns the carried fingerprint, or recomputes it from
// the author's effective identity when the record has none.
func (p *PostRecord) EffectiveFingerprint() string {
	if p.Fingerprint != "" {
		return p.Fingerprint
	}
	return fingerprint.Compute(fingerprint.Input{
		AuthorIdentity: p.Author.Bundle().EffectiveIdentity(),
		Content:        p.Content,
		CreatedAt:      p.CreatedAt,
		Image:          p.Image,
	})
}

// EffectiveFingerprint returns the carried fingerprint or recomputes it.
func (c *CommentRecord) EffectiveFingerprint() string {
	if c.Fingerprint != "" {
		return c.Fingerprint
	}
	return fingerprint.Compute(fingerprint.Input{
		AuthorIdentity: c.Author.Bundle().EffectiveIdentity(),
		Content:        c.Content,
		CreatedAt:      c.CreatedAt,
	})
}

// ExportOptions configures an export.
type ExportOptions struct {
	DeviceLabel string // exporting installation, stamped on the document and author bundles
	OutputDir   string // directory export files are written to
	Compress    bool   // write .json.zst instead of .json
	Canonical   bool   // write canonical JSON instead of indented JSON
	KeepLast    int    // prune older export files beyond this many; 0 disables pruning
	Now         func() time.Time
}

// ExportResult contains the result of an export.
type ExportResult struct {
	OutputPath    string   `json:"output_path"`
	SnapshotRev   string   `json:"snapshot_rev"`
	PostCount     int      `json:"post_count"`
	CommentCount  int      `json:"comment_count"`
	Compressed    bool     `json:"compressed"`
	PrunedExports []string `json:"pruned_exports,omitempty"`
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	InputPath   string `json:"input_path"`
	Valid       bool   `json:"valid"`
	SnapshotRev string `json:"snapshot_rev"`
	ComputedRev string `json:"computed_rev"`
	Message     string `json:"message"`
}

// FormatTimestamp formats a time as the document's export_date.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// recordValidate validates snapshot records. Initialized in init() with
// custom validators.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()

	_ = recordValidate.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, err := domain.ValidateTimestamp(fl.Field().String())
		return err == nil
	})
	_ = recordValidate.RegisterValidation("fingerprint", func(fl validator.FieldLevel) bool {
		return fingerprint.Valid(fl.Field().String())
	})
	_ = recordValidate.RegisterValidation("syncid", func(fl validator.FieldLevel) bool {
		return domain.ValidateSyncIdentity(fl.Field().String()) == nil
	})
}

func peekOriginID(data []byte) int64 {
	var head struct {
		OriginID json.RawMessage `json:"origin_id"`
	}
	if json.Unmarshal(data, &head) != nil {
		return 0
	}
	id, _ := strconv.ParseInt(strings.Trim(string(head.OriginID), `"`), 10, 64)
	return id
}
