package snapshot

import "log/slog"

// Entity names a kind of merged record.
type Entity string

const (
	EntityPost    Entity = "post"
	EntityComment Entity = "comment"
	EntityLike    Entity = "like"
)

// Outcome is the terminal state of one merged record.
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeConflict Outcome = "conflict"
)

// Recorder receives every merge outcome, e.g. to feed metrics.
type Recorder interface {
	RecordOutcome(entity, outcome string)
	RecordUserCreated()
}

// EntityStats counts outcomes for one entity kind.
type EntityStats struct {
	Seen      int `json:"seen" yaml:"seen"`
	Imported  int `json:"imported" yaml:"imported"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Conflicts int `json:"conflicts" yaml:"conflicts"`
}

// MergeStatistics is the caller-facing report of one import.
type MergeStatistics struct {
	Posts        EntityStats `json:"posts" yaml:"posts"`
	Comments     EntityStats `json:"comments" yaml:"comments"`
	Likes        EntityStats `json:"likes" yaml:"likes"`
	UsersCreated int         `json:"users_created" yaml:"users_created"`
	SnapshotRev  string      `json:"snapshot_rev,omitempty" yaml:"snapshot_rev,omitempty"`
	SourceDevice string      `json:"source_device,omitempty" yaml:"source_device,omitempty"`
}

// Imported is the number of posts and comments written.
func (s *MergeStatistics) Imported() int {
	return s.Posts.Imported + s.Comments.Imported
}

// Conflicts is the number of records of any kind that failed.
func (s *MergeStatistics) Conflicts() int {
	return s.Posts.Conflicts + s.Comments.Conflicts + s.Likes.Conflicts
}

// LogValue renders the statistics as a structured log group.
func (s *MergeStatistics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("posts", s.Posts),
		slog.Any("comments", s.Comments),
		slog.Any("likes", s.Likes),
		slog.Int("users_created", s.UsersCreated),
		slog.String("snapshot_rev", s.SnapshotRev),
		slog.String("source_device", s.SourceDevice),
	)
}

// tally keeps the statistics and the optional recorder in step.
type tally struct {
	stats    *MergeStatistics
	recorder Recorder
}

func (t *tally) entity(e Entity) *EntityStats {
	switch e {
	case EntityComment:
		return &t.stats.Comments
	case EntityLike:
		return &t.stats.Likes
	default:
		return &t.stats.Posts
	}
}

func (t *tally) seen(e Entity) {
	t.entity(e).Seen++
}

func (t *tally) outcome(e Entity, o Outcome) {
	es := t.entity(e)
	switch o {
	case OutcomeImported:
		es.Imported++
	case OutcomeSkipped:
		es.Skipped++
	case OutcomeConflict:
		es.Conflicts++
	}
	if t.recorder != nil {
		t.recorder.RecordOutcome(string(e), string(o))
	}
}

func (t *tally) userCreated() {
	t.stats.UsersCreated++
	if t.recorder != nil {
		t.recorder.RecordUserCreated()
	}
}
