package store

import (
	"context"
	"time"

	"github.com/ajitpratap0/ghlexport/pkg/models"
)

// Discard accepts every save and keeps nothing. It backs dry runs, which
// must not touch a real backend.
type Discard struct{}

// Save implements Store.
func (Discard) Save(_ context.Context, domain string, data interface{}, locationID, _ string) (*Ack, error) {
	return &Ack{Domain: domain, LocationID: locationID, Count: models.CountRecords(plainValue(data)), ExportedAt: time.Now().UTC()}, nil
}

// Read implements Store.
func (Discard) Read(context.Context, string, string) (*Snapshot, error) { return nil, nil }

// List implements Store.
func (Discard) List(context.Context, string) (Manifest, error) { return Manifest{}, nil }

// Close implements Store.
func (Discard) Close() error { return nil }
