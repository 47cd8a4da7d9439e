// internal/domain/channel/repository.go
package channel

import "context"

// Store persists the full set of channels. Implementations serialize them to the
// flat key-value form (see Flatten) in whatever backend they wrap.
type Store interface {
	Load(ctx context.Context) ([]*Channel, error)
	Save(ctx context.Context, channels []*Channel) error
	Close() error
}
