package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/fingerprint"
	"github.com/lherron/kindwall/internal/identity"
	"github.com/lherron/kindwall/internal/store"
)

// MergeOptions configures a merge.
type MergeOptions struct {
	ImporterID  int64  // local user performing the import
	DeviceLabel string // this installation, for fingerprints of legacy rows
	Logger      *slog.Logger
	Recorder    Recorder
}

// Merger merges snapshot documents into the local store. Records are
// processed sequentially, posts before comments; every write is its own
// statement, so an interrupted merge is safely resumed by re-running it.
type Merger struct {
	store       *store.Store
	resolver    *identity.Resolver
	logger      *slog.Logger
	recorder    Recorder
	deviceLabel string

	importerID       int64
	importerIdentity string
}

// NewMerger creates a merger importing on behalf of opts.ImporterID.
func NewMerger(s *store.Store, opts MergeOptions) (*Merger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	importer, err := s.Users.Get(opts.ImporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load importing user: %w", err)
	}

	resolver := identity.NewResolver(s, logger)
	resolver.ActorID = &importer.ID
	resolver.LocalDevice = opts.DeviceLabel

	return &Merger{
		store:            s,
		resolver:         resolver,
		logger:           logger,
		recorder:         opts.Recorder,
		deviceLabel:      opts.DeviceLabel,
		importerID:       importer.ID,
		importerIdentity: domain.StringValue(importer.SyncUUID),
	}, nil
}

// Merge applies one document and returns its statistics. Per-record
// failures are logged and counted as conflicts, never returned.
func (m *Merger) Merge(doc *Document) (*MergeStatistics, error) {
	stats := &MergeStatistics{
		SnapshotRev:  doc.Metadata.SnapshotRev,
		SourceDevice: doc.ExportDevice,
	}
	t := &tally{stats: stats, recorder: m.recorder}

	if doc.Version != FormatVersion {
		m.logger.Warn("snapshot version differs from current format",
			slog.String("version", doc.Version),
			slog.String("current", FormatVersion))
	}

	// origin post id -> local post id, valid for this call only
	remap := make(map[int64]int64, len(doc.Posts))

	for i := range doc.Posts {
		m.mergePost(t, remap, &doc.Posts[i])
	}
	for i := range doc.Comments {
		m.mergeComment(t, remap, &doc.Comments[i])
	}

	m.logger.Info("snapshot merged", slog.Any("stats", stats))

	if err := m.store.Events().LogSnapshotImported(nil, &m.importerID, stats); err != nil {
		m.logger.Warn("failed to record import event", slog.String("error", err.Error()))
	}

	return stats, nil
}

func (m *Merger) mergePost(t *tally, remap map[int64]int64, rec *PostRecord) {
	t.seen(EntityPost)

	if err := rec.Validate(); err != nil {
		m.conflict(t, EntityPost, rec.OriginID, fmt.Errorf("invalid record: %w", err))
		return
	}

	fp := rec.EffectiveFingerprint()

	candidates, err := m.store.Posts.FindCandidates(rec.Content, rec.CreatedAt)
	if err != nil {
		m.conflict(t, EntityPost, rec.OriginID, err)
		return
	}
	for _, cand := range candidates {
		local, err := m.postFingerprint(cand)
		if err != nil {
			m.conflict(t, EntityPost, rec.OriginID, err)
			return
		}
		if local == fp {
			remap[rec.OriginID] = cand.ID
			t.outcome(EntityPost, OutcomeSkipped)
			m.logger.Debug("duplicate post skipped",
				slog.Int64("origin_id", rec.OriginID),
				slog.Int64("local_id", cand.ID))
			return
		}
	}

	authorID, anonymous, degraded := m.resolveAuthor(t, EntityPost, rec.OriginID, rec.Author)

	post, err := m.store.Posts.Create(&m.importerID, store.CreatePostParams{
		UserID:      authorID,
		Content:     rec.Content,
		ImageData:   rec.Image,
		CreatedAt:   rec.CreatedAt,
		Likes:       rec.Likes,
		IsAnonymous: rec.IsAnonymous || anonymous,
		Fingerprint: fp,
	})
	if err != nil {
		if !degraded {
			m.conflict(t, EntityPost, rec.OriginID, err)
		} else {
			m.logger.Warn("failed to insert post", slog.Int64("origin_id", rec.OriginID), slog.String("error", err.Error()))
		}
		return
	}

	remap[rec.OriginID] = post.ID
	t.outcome(EntityPost, OutcomeImported)

	if m.likedByImporter(rec.LikedBy) {
		m.linkLike(t, EntityPost, rec.OriginID, func() (bool, error) {
			return m.store.Posts.LinkLike(m.importerID, post.ID)
		})
	}
}

func (m *Merger) mergeComment(t *tally, remap map[int64]int64, rec *CommentRecord) {
	t.seen(EntityComment)

	if err := rec.Validate(); err != nil {
		m.conflict(t, EntityComment, rec.OriginID, fmt.Errorf("invalid record: %w", err))
		return
	}

	postID, ok := remap[rec.ParentOriginPostID]
	if !ok && rec.ParentFingerprint != "" {
		parent, err := m.store.Posts.FindByFingerprint(rec.ParentFingerprint)
		if err != nil {
			m.conflict(t, EntityComment, rec.OriginID, err)
			return
		}
		if parent != nil {
			postID, ok = parent.ID, true
		}
	}
	if !ok {
		m.conflict(t, EntityComment, rec.OriginID,
			fmt.Errorf("parent post %d not found in snapshot or local store", rec.ParentOriginPostID))
		return
	}

	fp := rec.EffectiveFingerprint()

	candidates, err := m.store.Comments.FindCandidates(postID, rec.Content, rec.CreatedAt)
	if err != nil {
		m.conflict(t, EntityComment, rec.OriginID, err)
		return
	}
	for _, cand := range candidates {
		local, err := m.commentFingerprint(cand)
		if err != nil {
			m.conflict(t, EntityComment, rec.OriginID, err)
			return
		}
		if local == fp {
			t.outcome(EntityComment, OutcomeSkipped)
			m.logger.Debug("duplicate comment skipped",
				slog.Int64("origin_id", rec.OriginID),
				slog.Int64("local_id", cand.ID))
			return
		}
	}

	authorID, anonymous, degraded := m.resolveAuthor(t, EntityComment, rec.OriginID, rec.Author)

	comment, err := m.store.Comments.Create(&m.importerID, store.CreateCommentParams{
		PostID:      postID,
		UserID:      authorID,
		Content:     rec.Content,
		CreatedAt:   rec.CreatedAt,
		Likes:       rec.Likes,
		IsAnonymous: rec.IsAnonymous || anonymous,
		Fingerprint: fp,
	})
	if err != nil {
		if !degraded {
			m.conflict(t, EntityComment, rec.OriginID, err)
		} else {
			m.logger.Warn("failed to insert comment", slog.Int64("origin_id", rec.OriginID), slog.String("error", err.Error()))
		}
		return
	}

	t.outcome(EntityComment, OutcomeImported)

	if m.likedByImporter(rec.LikedBy) {
		m.linkLike(t, EntityComment, rec.OriginID, func() (bool, error) {
			return m.store.Comments.LinkLike(m.importerID, comment.ID)
		})
	}
}

// resolveAuthor maps a record's author to a local user. The resolver falls
// back to a placeholder user on its own; only when that fails too is the
// record attributed to the importer and flagged anonymous, which counts as
// a conflict.
func (m *Merger) resolveAuthor(t *tally, e Entity, originID int64, author Author) (userID int64, anonymous, degraded bool) {
	res, err := m.resolver.Resolve(author.Bundle())
	if err != nil {
		m.conflict(t, e, originID, err)
		return m.importerID, true, true
	}
	if res.Created {
		t.userCreated()
	}
	return res.UserID, false, false
}

func (m *Merger) linkLike(t *tally, e Entity, originID int64, link func() (bool, error)) {
	t.seen(EntityLike)
	inserted, err := link()
	switch {
	case err != nil:
		m.conflict(t, EntityLike, originID, fmt.Errorf("failed to like %s: %w", e, err))
	case inserted:
		t.outcome(EntityLike, OutcomeImported)
	default:
		t.outcome(EntityLike, OutcomeSkipped)
	}
}

func (m *Merger) likedByImporter(likedBy []string) bool {
	return m.importerIdentity != "" && slices.Contains(likedBy, m.importerIdentity)
}

func (m *Merger) conflict(t *tally, e Entity, originID int64, err error) {
	recErr := &RecordError{Entity: e, OriginID: originID, Err: err}

	attrs := []any{
		slog.String("entity", string(e)),
		slog.Int64("origin_id", originID),
		slog.String("error", recErr.Error()),
	}
	var idErr *identity.IdentityError
	if errors.As(err, &idErr) {
		attrs = append(attrs, slog.String("author", idErr.DisplayName))
		m.logger.Warn("author unresolved, attributing to importer as anonymous", attrs...)
	} else {
		m.logger.Warn("record not merged", attrs...)
	}

	t.outcome(e, OutcomeConflict)
}

// postFingerprint returns a local post's stored fingerprint, or computes it
// the way this device exports it.
func (m *Merger) postFingerprint(p domain.Post) (string, error) {
	if p.Fingerprint != nil && *p.Fingerprint != "" {
		return *p.Fingerprint, nil
	}
	author, err := m.localAuthorIdentity(p.UserID)
	if err != nil {
		return "", err
	}
	return fingerprint.Compute(fingerprint.Input{
		AuthorIdentity: author,
		Content:        p.Content,
		CreatedAt:      p.CreatedAt,
		Image:          p.ImageData,
	}), nil
}

func (m *Merger) commentFingerprint(c domain.Comment) (string, error) {
	if c.Fingerprint != nil && *c.Fingerprint != "" {
		return *c.Fingerprint, nil
	}
	author, err := m.localAuthorIdentity(c.UserID)
	if err != nil {
		return "", err
	}
	return fingerprint.Compute(fingerprint.Input{
		AuthorIdentity: author,
		Content:        c.Content,
		CreatedAt:      c.CreatedAt,
	}), nil
}

func (m *Merger) localAuthorIdentity(userID int64) (string, error) {
	u, err := m.store.Users.Get(userID)
	if err != nil {
		return "", err
	}
	if u.HasIdentity() {
		return *u.SyncUUID, nil
	}
	return fingerprint.PlaceholderIdentity(m.deviceLabel, u.ID), nil
}
