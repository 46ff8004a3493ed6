package shared

// Entity is implemented by every read-model type held in a domain cache.
// The identifier is the same one the backend keys its push payloads by,
// so pending optimistic writes and cache entries line up.
type Entity interface {
	EntityID() string
}
