package ports

import "github.com/mikey/greylist-filter/internal/core"

// GreylistStore is a KVStore owning resources that must be released on shutdown
type GreylistStore interface {
	core.KVStore

	// Stop stops background tasks and closes connections
	Stop()
}
