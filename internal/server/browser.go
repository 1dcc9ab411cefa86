package server

import (
	"context"

	"github.com/kiesman99/scrollstitch/internal/viewport/browser"
)

// ManagedBrowser serves pages from m, starting Chrome on first use.
func ManagedBrowser(m *browser.Manager) Browser {
	return managedBrowser{m: m}
}

type managedBrowser struct {
	m *browser.Manager
}

func (b managedBrowser) Open(ctx context.Context, url string, width, height int) (Page, error) {
	// Chrome outlives the request that happens to launch it.
	if err := b.m.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	p, err := b.m.Open(ctx, url, width, height)
	if err != nil {
		return nil, err
	}
	return p, nil
}
