package store

// Message is a locally cached chat message. Timestamp is unix milliseconds.
type Message struct {
	ID          string
	Content     string
	SenderID    string
	SenderAlias string
	Status      string
	Timestamp   int64
}

// SearchResult holds a cached message with a short snippet around the match.
type SearchResult struct {
	Message Message
	Snippet string
}
