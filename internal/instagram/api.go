package instagram

import "context"

// API is the vendor boundary to Instagram's private messaging endpoints.
// The bridge depends on this interface; the HTTP transport implements it
// and tests substitute fakes.
type API interface {
	// Login authenticates with credentials and returns session state
	// suitable for persistence.
	Login(ctx context.Context, username, password string) (*Session, error)

	// Resume validates a previously saved session against the server.
	// It returns ErrLoginRequired when the session is no longer valid.
	Resume(ctx context.Context, session *Session) error

	// DirectThreads fetches up to limit inbox threads, most recent first.
	DirectThreads(ctx context.Context, limit int) ([]RawThread, error)

	// ThreadMessages fetches up to limit messages from a thread. A
	// non-empty maxID continues pagination from that cursor.
	ThreadMessages(ctx context.Context, threadID string, limit int, maxID string) ([]RawMessage, error)

	// UserInfo looks up a user's profile by username.
	UserInfo(ctx context.Context, username string) (*RawUser, error)

	// SendText sends a text message to an existing thread, or to the
	// given user IDs when threadID is empty (creating a thread). Returns
	// the new message's ID.
	SendText(ctx context.Context, threadID, text string, userIDs []string) (string, error)

	// AccountInfo returns the authenticated account's own profile.
	AccountInfo(ctx context.Context) (*RawAccount, error)

	// Ping performs a cheap authenticated request to verify the session
	// and connectivity.
	Ping(ctx context.Context) error
}
