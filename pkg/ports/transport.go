package ports

import (
	"context"

	"github.com/aretw0/hetcore/pkg/domain"
)

// Transport carries a marshaled call to a remote core and brings back the
// function's status and response bytes.
type Transport interface {
	Invoke(ctx context.Context, core domain.Core, fn int, msg []byte) (domain.Status, []byte, error)
	// Functions lists the entry points exported by core.
	Functions(ctx context.Context, core domain.Core) ([]domain.EntryPoint, error)
}
