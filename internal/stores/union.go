package stores

import (
	"context"
	"errors"

	"esovm.org/esovm/internal/cadata"
)

// Union reads from the first Getter which has the data
type Union []cadata.Getter

func (s Union) Get(ctx context.Context, id cadata.ID, buf []byte) (int, error) {
	for _, s2 := range s {
		n, err := s2.Get(ctx, id, buf)
		if errors.As(err, &cadata.ErrNotFound{}) {
			continue
		}
		return n, err
	}
	return 0, cadata.ErrNotFound{Key: id}
}
