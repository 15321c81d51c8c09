package auth

// Known OAuth scopes used by the feed service.
const (
	ScopeFeedRead = "feed:read"
)
