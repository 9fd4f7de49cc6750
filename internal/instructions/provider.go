package instructions

import "context"

// Provider resolves behavioral instructions for a call context. The bridge
// falls back to a fixed default string when resolution fails or returns
// nothing.
type Provider interface {
	Lookup(ctx context.Context, callSID string) (string, error)
}

// Static always returns the same instruction text.
type Static struct {
	Text string
}

func (s Static) Lookup(context.Context, string) (string, error) {
	return s.Text, nil
}
