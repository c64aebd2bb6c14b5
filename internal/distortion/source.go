package distortion

import (
	"context"
	"log/slog"

	"wcscal/internal/table"
)

// Source produces a coefficient model from one source representation.
type Source interface {
	Load(ctx context.Context) (*Model, error)
}

// TableOpener opens reference tables by name.
type TableOpener interface {
	Open(name string) (*table.Table, error)
}

// IdentitySource yields the non-distorting default model.
type IdentitySource struct{}

// Load returns Identity().
func (IdentitySource) Load(ctx context.Context) (*Model, error) {
	return Identity(), nil
}

// Load resolves src, falling back to the identity model when src is nil.
func Load(ctx context.Context, src Source, log *slog.Logger) (*Model, error) {
	if src == nil {
		if log != nil {
			log.Warn("no distortion source specified, no distortion correction will be applied")
		}
		return Identity(), nil
	}
	return src.Load(ctx)
}

func orDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
