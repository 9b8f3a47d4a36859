package pipeline

import (
	"context"

	"eprints2bags/internal/eprints"
)

// Lister enumerates every identifier on the server.
type Lister interface {
	ListAll(ctx context.Context) ([]string, error)
}

// ResolveIdentifiers produces the requested set from the -i argument, or by
// enumerating the server when the argument is empty.
func ResolveIdentifiers(ctx context.Context, arg string, lister Lister) ([]string, error) {
	ids, err := eprints.ParseIdentifiers(arg)
	if err != nil {
		return nil, err
	}
	if ids != nil || lister == nil {
		return ids, nil
	}
	return lister.ListAll(ctx)
}
