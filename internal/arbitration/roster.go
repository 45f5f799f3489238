// Package arbitration handles moderator rulings on disputed wagers.
package arbitration

import "sync/atomic"

// Roster is the set of platform moderators. Disputes are assigned
// round-robin.
type Roster struct {
	moderators []string
	members    map[string]bool
	next       atomic.Uint64
}

// NewRoster creates a moderator roster.
func NewRoster(moderators []string) *Roster {
	members := make(map[string]bool, len(moderators))
	for _, m := range moderators {
		members[m] = true
	}
	return &Roster{moderators: moderators, members: members}
}

// NextModerator returns the next moderator in rotation, or "" when the
// roster is empty.
func (r *Roster) NextModerator() string {
	if len(r.moderators) == 0 {
		return ""
	}
	n := r.next.Add(1) - 1
	return r.moderators[n%uint64(len(r.moderators))]
}

// IsModerator reports whether userID is on the roster.
func (r *Roster) IsModerator(userID string) bool {
	return r.members[userID]
}

// Moderators returns the roster members.
func (r *Roster) Moderators() []string {
	return r.moderators
}
