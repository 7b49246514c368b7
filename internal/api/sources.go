package api

import "context"

// SourceLister is the contract for the NDI discovery/find layer, which
// this module treats as an external collaborator: it knows how to
// enumerate discoverable source names and to trigger a fresh scan. The
// bridge core never discovers sources itself, only consumes names already
// chosen through SlotConfig.
type SourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
	RefreshSources(ctx context.Context) ([]string, error)
}

// StaticSourceLister is a minimal SourceLister for deployments without a
// live discovery backend wired in (e.g. the synthetic test-tone mode):
// it reports a fixed list and never changes on refresh.
type StaticSourceLister struct {
	Names []string
}

func (s StaticSourceLister) ListSources(ctx context.Context) ([]string, error) {
	return s.Names, nil
}

func (s StaticSourceLister) RefreshSources(ctx context.Context) ([]string, error) {
	return s.Names, nil
}
