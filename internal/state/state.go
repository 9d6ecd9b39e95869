// Package state tracks per-user moderation history.
//
// Each chat identity owns one UserState row: monotonically growing action
// counters plus stream context (followers, viewers, topic). The tracker is
// the only writer; every Apply is flushed to SQLite before it returns so a
// crash loses at most the in-flight event.
//
// The identity key exists only in this package and in the snapshot layout.
// Fingerprint — the serialized form handed to the retrieval memory and the
// agents — never contains it.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/warden/internal/otel"
	"github.com/dativo-io/warden/internal/plan"
)

var tracer = otel.Tracer("github.com/dativo-io/warden/internal/state")

const schema = `
CREATE TABLE IF NOT EXISTS user_states (
    identity TEXT PRIMARY KEY,
    ban_count INTEGER NOT NULL DEFAULT 0,
    warning_count INTEGER NOT NULL DEFAULT 0,
    timeout_count INTEGER NOT NULL DEFAULT 0,
    deleted_comments INTEGER NOT NULL DEFAULT 0,
    replies_sent INTEGER NOT NULL DEFAULT 0,
    follower_count INTEGER NOT NULL DEFAULT 0,
    viewer_count INTEGER NOT NULL DEFAULT 0,
    current_topic TEXT NOT NULL DEFAULT '',
    last_action TEXT NOT NULL DEFAULT ''
);
`

// UserState is the moderation history for one identity. The identity key is
// deliberately not a field; it lives only in the tracker's keying.
type UserState struct {
	BanCount        int    `json:"ban_count"`
	WarningCount    int    `json:"warning_count"`
	TimeoutCount    int    `json:"timeout_count"`
	DeletedComments int    `json:"deleted_comments"`
	RepliesSent     int    `json:"replies_sent"`
	FollowerCount   int    `json:"follower_count"`
	ViewerCount     int    `json:"viewer_count"`
	CurrentTopic    string `json:"current_topic"`
	LastAction      string `json:"last_action"`
}

// Fingerprint serializes the state for similarity retrieval and prompts.
// Field order is fixed; optional fields are appended only when set. The
// identity never appears in the output.
func (s UserState) Fingerprint() string {
	parts := []string{
		fmt.Sprintf("bans:%d", s.BanCount),
		fmt.Sprintf("warnings:%d", s.WarningCount),
		fmt.Sprintf("timeouts:%d", s.TimeoutCount),
		fmt.Sprintf("deleted:%d", s.DeletedComments),
		fmt.Sprintf("replies:%d", s.RepliesSent),
		fmt.Sprintf("followers:%d", s.FollowerCount),
		fmt.Sprintf("viewers:%d", s.ViewerCount),
	}
	if s.CurrentTopic != "" {
		parts = append(parts, "topic:"+s.CurrentTopic)
	}
	if s.LastAction != "" {
		parts = append(parts, "last_action:"+s.LastAction)
	}
	return strings.Join(parts, ", ")
}

// Tracker persists user states in SQLite. All operations read and write the
// database directly, so durability holds after every mutation without a
// separate flush step.
type Tracker struct {
	db *sql.DB
}

// NewTracker opens (or creates) the state database at dbPath.
func NewTracker(dbPath string) (*Tracker, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating state schema: %w", err)
	}
	return &Tracker{db: db}, nil
}

// Close releases the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// Get returns the state for identity, lazily zero-valued when absent.
// A missing row is not an error and is not persisted until the first write.
func (t *Tracker) Get(ctx context.Context, identity string) (UserState, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT ban_count, warning_count, timeout_count, deleted_comments, replies_sent,
		        follower_count, viewer_count, current_topic, last_action
		 FROM user_states WHERE identity = ?`, identity)

	var s UserState
	err := row.Scan(&s.BanCount, &s.WarningCount, &s.TimeoutCount, &s.DeletedComments,
		&s.RepliesSent, &s.FollowerCount, &s.ViewerCount, &s.CurrentTopic, &s.LastAction)
	if err == sql.ErrNoRows {
		return UserState{}, nil
	}
	if err != nil {
		return UserState{}, fmt.Errorf("querying user state: %w", err)
	}
	return s, nil
}

// Apply mutates the counts for identity according to the action, always
// updates last_action, persists, and returns the updated state. Unknown
// actions leave all counts untouched but still record last_action — a bad
// plan must not halt the stream.
func (t *Tracker) Apply(ctx context.Context, identity string, call plan.ActionCall) (UserState, error) {
	ctx, span := tracer.Start(ctx, "state.apply")
	defer span.End()

	s, err := t.Get(ctx, identity)
	if err != nil {
		return UserState{}, err
	}

	switch call.Action {
	case plan.BanUser:
		s.BanCount++
	case plan.WarnUser:
		s.WarningCount++
	case plan.TimeoutUser5m, plan.TimeoutUser10m:
		s.TimeoutCount++
	case plan.DeleteComment:
		s.DeletedComments++
	case plan.Reply:
		s.RepliesSent++
	case plan.LogIncident, plan.LetCommentStand:
		// no count change
	default:
		log.Warn().
			Str("action", string(call.Action)).
			Msg("unknown_action_skipped")
	}
	s.LastAction = string(call.Action)

	if err := t.put(ctx, identity, s); err != nil {
		return UserState{}, err
	}
	return s, nil
}

// UpdateContext records stream context carried on an event (follower count,
// viewer count, topic). Negative counts mean "unchanged".
func (t *Tracker) UpdateContext(ctx context.Context, identity string, followers, viewers int, topic string) (UserState, error) {
	s, err := t.Get(ctx, identity)
	if err != nil {
		return UserState{}, err
	}
	if followers >= 0 {
		s.FollowerCount = followers
	}
	if viewers >= 0 {
		s.ViewerCount = viewers
	}
	if topic != "" {
		s.CurrentTopic = topic
	}
	if err := t.put(ctx, identity, s); err != nil {
		return UserState{}, err
	}
	return s, nil
}

// Reset zeroes the state for identity. States are never deleted; reset is
// the only sanctioned way to shrink a counter.
func (t *Tracker) Reset(ctx context.Context, identity string) error {
	return t.put(ctx, identity, UserState{})
}

// put upserts the full state row for identity.
func (t *Tracker) put(ctx context.Context, identity string, s UserState) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO user_states (
			identity, ban_count, warning_count, timeout_count, deleted_comments,
			replies_sent, follower_count, viewer_count, current_topic, last_action
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			ban_count = excluded.ban_count,
			warning_count = excluded.warning_count,
			timeout_count = excluded.timeout_count,
			deleted_comments = excluded.deleted_comments,
			replies_sent = excluded.replies_sent,
			follower_count = excluded.follower_count,
			viewer_count = excluded.viewer_count,
			current_topic = excluded.current_topic,
			last_action = excluded.last_action`,
		identity, s.BanCount, s.WarningCount, s.TimeoutCount, s.DeletedComments,
		s.RepliesSent, s.FollowerCount, s.ViewerCount, s.CurrentTopic, s.LastAction)
	if err != nil {
		return fmt.Errorf("writing user state: %w", err)
	}
	return nil
}

// Snapshot returns every identity's state. This is the persisted-state
// layout: identity → fields, with no field loss on round-trip.
func (t *Tracker) Snapshot(ctx context.Context) (map[string]UserState, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT identity, ban_count, warning_count, timeout_count, deleted_comments,
		        replies_sent, follower_count, viewer_count, current_topic, last_action
		 FROM user_states`)
	if err != nil {
		return nil, fmt.Errorf("reading state snapshot: %w", err)
	}
	defer rows.Close()

	snap := make(map[string]UserState)
	for rows.Next() {
		var identity string
		var s UserState
		if err := rows.Scan(&identity, &s.BanCount, &s.WarningCount, &s.TimeoutCount,
			&s.DeletedComments, &s.RepliesSent, &s.FollowerCount, &s.ViewerCount,
			&s.CurrentTopic, &s.LastAction); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		snap[identity] = s
	}
	return snap, rows.Err()
}

// Restore replaces all tracked states with the snapshot contents.
func (t *Tracker) Restore(ctx context.Context, snap map[string]UserState) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_states`); err != nil {
		return fmt.Errorf("clearing user states: %w", err)
	}
	for identity, s := range snap {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_states (
				identity, ban_count, warning_count, timeout_count, deleted_comments,
				replies_sent, follower_count, viewer_count, current_topic, last_action
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			identity, s.BanCount, s.WarningCount, s.TimeoutCount, s.DeletedComments,
			s.RepliesSent, s.FollowerCount, s.ViewerCount, s.CurrentTopic, s.LastAction)
		if err != nil {
			return fmt.Errorf("restoring state for identity: %w", err)
		}
	}
	return tx.Commit()
}
