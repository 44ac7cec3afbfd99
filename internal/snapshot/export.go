package snapshot

import (
	"fmt"
	"os"
	"time"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/fingerprint"
	"github.com/lherron/kindwall/internal/store"
)

// Export reads the wall and writes a snapshot file to opts.OutputDir, then
// prunes older exports. Nothing is written to the store.
func Export(s *store.Store, opts ExportOptions) (*ExportResult, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("export directory is not configured")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	opts.Now = now

	doc, err := BuildDocument(s, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}

	data, err := Encode(doc, opts.Canonical)
	if err != nil {
		return nil, err
	}
	if opts.Compress {
		data, err = compress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to compress snapshot: %w", err)
		}
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path, err := exportPath(opts.OutputDir, now(), opts.Compress)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}

	pruned, err := PruneExports(opts.OutputDir, opts.KeepLast)
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		OutputPath:    path,
		SnapshotRev:   doc.Metadata.SnapshotRev,
		PostCount:     len(doc.Posts),
		CommentCount:  len(doc.Comments),
		Compressed:    opts.Compress,
		PrunedExports: pruned,
	}, nil
}

// Encode renders a document as indented or canonical JSON.
func Encode(doc *Document, canonical bool) ([]byte, error) {
	if canonical {
		data, err := CanonicalJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to generate canonical JSON: %w", err)
		}
		return data, nil
	}
	data, err := PrettyJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JSON: %w", err)
	}
	return data, nil
}

// BuildDocument assembles the snapshot document in memory, with
// metadata.snapshot_rev set to the content revision.
func BuildDocument(s *store.Store, opts ExportOptions) (*Document, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	users, err := s.Users.List()
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	byID := make(map[int64]*domain.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	posts, err := s.Posts.List()
	if err != nil {
		return nil, fmt.Errorf("failed to export posts: %w", err)
	}
	postLikers, err := s.Posts.LikerIdentities()
	if err != nil {
		return nil, fmt.Errorf("failed to export post likes: %w", err)
	}

	comments, err := s.Comments.List()
	if err != nil {
		return nil, fmt.Errorf("failed to export comments: %w", err)
	}
	commentLikers, err := s.Comments.LikerIdentities()
	if err != nil {
		return nil, fmt.Errorf("failed to export comment likes: %w", err)
	}

	doc := &Document{
		Version:      FormatVersion,
		ExportDate:   FormatTimestamp(now()),
		ExportDevice: opts.DeviceLabel,
		Posts:        make([]PostRecord, 0, len(posts)),
		Comments:     make([]CommentRecord, 0, len(comments)),
	}

	postFingerprints := make(map[int64]string, len(posts))
	for _, p := range posts {
		author, err := authorOf(byID, p.UserID, opts.DeviceLabel)
		if err != nil {
			return nil, fmt.Errorf("failed to export post %d: %w", p.ID, err)
		}

		fp := domain.StringValue(p.Fingerprint)
		if fp == "" {
			fp = fingerprint.Compute(fingerprint.Input{
				AuthorIdentity: author.Bundle().EffectiveIdentity(),
				Content:        p.Content,
				CreatedAt:      p.CreatedAt,
				Image:          p.ImageData,
			})
		}
		postFingerprints[p.ID] = fp

		doc.Posts = append(doc.Posts, PostRecord{
			OriginID:    p.ID,
			Content:     p.Content,
			Image:       p.ImageData,
			CreatedAt:   p.CreatedAt,
			Likes:       p.Likes,
			IsAnonymous: p.IsAnonymous,
			Fingerprint: fp,
			LikedBy:     postLikers[p.ID],
			Author:      author,
		})
	}

	for _, c := range comments {
		author, err := authorOf(byID, c.UserID, opts.DeviceLabel)
		if err != nil {
			return nil, fmt.Errorf("failed to export comment %d: %w", c.ID, err)
		}

		fp := domain.StringValue(c.Fingerprint)
		if fp == "" {
			fp = fingerprint.Compute(fingerprint.Input{
				AuthorIdentity: author.Bundle().EffectiveIdentity(),
				Content:        c.Content,
				CreatedAt:      c.CreatedAt,
			})
		}

		doc.Comments = append(doc.Comments, CommentRecord{
			OriginID:           c.ID,
			ParentOriginPostID: c.PostID,
			ParentFingerprint:  postFingerprints[c.PostID],
			Content:            c.Content,
			CreatedAt:          c.CreatedAt,
			Likes:              c.Likes,
			IsAnonymous:        c.IsAnonymous,
			Fingerprint:        fp,
			LikedBy:            commentLikers[c.ID],
			Author:             author,
		})
	}

	doc.Metadata = Metadata{
		TotalPosts:    len(doc.Posts),
		TotalComments: len(doc.Comments),
		FormatVersion: FormatVersion,
	}

	rev, err := ContentRev(doc)
	if err != nil {
		return nil, err
	}
	doc.Metadata.SnapshotRev = rev

	return doc, nil
}

// authorOf builds the identity bundle for a local user. Authors without a
// stable identity are described by this device and their local id, which
// is what their placeholder identity derives from.
func authorOf(users map[int64]*domain.User, userID int64, deviceLabel string) (Author, error) {
	u, ok := users[userID]
	if !ok {
		return Author{}, &domain.NotFoundError{Resource: domain.ResourceUser, ID: userID}
	}

	id := u.ID
	author := Author{
		DisplayName:    u.Username,
		StableIdentity: domain.StringValue(u.SyncUUID),
		DeviceLabel:    deviceLabel,
		Avatar:         domain.StringValue(u.AvatarPath),
		Bio:            domain.StringValue(u.Bio),
		OriginUserID:   &id,
	}
	if author.StableIdentity != "" && u.OriginDevice != nil {
		author.DeviceLabel = *u.OriginDevice
	}
	return author, nil
}
