package config

const (
	// TopicEmbeddingsFinalized is the NSQ topic announcing that a batch job's
	// embeddings have been written back to the listing store.
	TopicEmbeddingsFinalized = "embeddings.finalized"

	// ChannelMatcher is the consumer channel for the matching worker.
	ChannelMatcher = "matcher"
)
