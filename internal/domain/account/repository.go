package account

import (
	"context"
)

// Repository defines the read access the celebration job needs over accounts.
type Repository interface {
	ListActive(ctx context.Context) ([]*Account, error)
}
