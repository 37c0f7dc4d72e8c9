package domain

import "context"

// Friendship is the result of a friendship lookup for one identity.
type Friendship struct {
	ScreenName  string
	FollowsBack bool
}

// FriendshipSettings carries the notification preferences applied after a
// follow-back.
type FriendshipSettings struct {
	Notifications bool
	Retweets      bool
}

// Relay is the bot's capability over the social platform. All operations
// report remote failures through the returned error; none panic for ordinary
// platform trouble (timeouts, platform-side rate limits).
type Relay interface {
	PostStatus(ctx context.Context, text string) error
	SendDirectMessage(ctx context.Context, userID int64, text string) error
	DestroyDirectMessage(ctx context.Context, messageID string) error
	DestroyStatus(ctx context.Context, statusID string) error
	CreateFriendship(ctx context.Context, userID int64) error
	DestroyFriendship(ctx context.Context, userID int64) error
	UpdateFriendship(ctx context.Context, userID int64, settings FriendshipSettings) error
	LookupFriendship(ctx context.Context, userID int64) (Friendship, error)
}
