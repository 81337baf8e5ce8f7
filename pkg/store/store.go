package store

import "agegate/pkg/domain"

// Store defines persistence operations for user profiles and conversation
// entries. Retention policy is not enforced here; the Conversations layer
// decides what may be written or read.
type Store interface {
	// profiles
	SaveProfile(domain.UserProfile) error
	GetProfile(userID string) (domain.UserProfile, bool, error)

	// conversation entries
	AppendEntry(domain.ConversationEntry) error
	// ListEntries returns up to limit entries for the user, newest first.
	ListEntries(userID string, limit int) ([]domain.ConversationEntry, error)

	// DeleteUser removes the profile and all entries for the user and
	// returns the number of rows removed. Unknown users remove zero rows.
	DeleteUser(userID string) (int64, error)
}
