package repository

// CacheRepository is a string key/value store. Implementations must be safe
// for concurrent use.
type CacheRepository interface {
	Get(key string) (string, bool)
	Set(key string, value string) error
}
