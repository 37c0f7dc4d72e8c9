package domain

// ConnectivityKind labels a change in the event feed's connection state.
type ConnectivityKind string

const (
	ConnectivityConnected    ConnectivityKind = "connected"
	ConnectivityReconnected  ConnectivityKind = "reconnected"
	ConnectivityDisconnected ConnectivityKind = "disconnected"
	ConnectivityRateLimited  ConnectivityKind = "rate_limited"
	ConnectivityWithheld     ConnectivityKind = "withheld"
)

// Event is a typed occurrence delivered by the platform event feed.
type Event interface{ event() }

// FriendsSnapshot lists the identities the bot already follows. Emitted once
// when the feed connects.
type FriendsSnapshot struct {
	IDs []int64
}

// FollowNotification reports that Source started following Target.
type FollowNotification struct {
	SourceID int64
	TargetID int64
}

// DirectMessage is a private message received by the bot.
type DirectMessage struct {
	// ID is kept as a string: some platform IDs exceed 53 bits and arrive
	// in a dedicated string field on the wire.
	ID          string
	SenderID    int64
	RecipientID int64
	Text        string
}

// Mention is a public post that names one or more identities.
type Mention struct {
	ID           string
	AuthorID     int64
	Text         string
	MentionedIDs []int64
}

// Connectivity reports a feed connection state change.
type Connectivity struct {
	Kind ConnectivityKind
}

func (FriendsSnapshot) event()    {}
func (FollowNotification) event() {}
func (DirectMessage) event()      {}
func (Mention) event()            {}
func (Connectivity) event()       {}
