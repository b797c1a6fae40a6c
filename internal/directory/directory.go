// Package directory resolves forum members for the equipment program.
package directory

import (
	"context"

	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

// Directory looks up forum members. LookupUser returns nil for unknown users.
type Directory interface {
	LookupUser(ctx context.Context, id int64) (*model.User, error)
	FindHolders(ctx context.Context) ([]model.Holder, error)
}
