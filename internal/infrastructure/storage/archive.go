// Package storage archives raw webhook payloads to object storage so
// disputed or misparsed deliveries can be replayed later.
package storage

import (
	"context"
	"fmt"
	"time"
)

// PayloadArchive stores raw webhook bodies. Archiving is best-effort:
// the webhook flow proceeds even when the archive write fails.
type PayloadArchive interface {
	// Archive stores one raw payload and returns its storage key.
	Archive(ctx context.Context, marketplace, externalOrderID string, payload []byte) (string, error)

	// DownloadURL returns a presigned URL for retrieving an archived payload.
	DownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}

// archiveKey builds the storage key for one delivery, partitioned by
// marketplace and receipt date.
func archiveKey(marketplace, externalOrderID string, at time.Time) string {
	return fmt.Sprintf("webhooks/%s/%s/%s.json", marketplace, at.UTC().Format("2006/01/02"), externalOrderID)
}

// NopArchive discards payloads. Used when object storage is disabled.
type NopArchive struct{}

// NewNopArchive creates a NopArchive
func NewNopArchive() *NopArchive {
	return &NopArchive{}
}

// Archive returns the key the payload would have been stored under.
func (NopArchive) Archive(_ context.Context, marketplace, externalOrderID string, _ []byte) (string, error) {
	return archiveKey(marketplace, externalOrderID, time.Now()), nil
}

// DownloadURL returns an empty URL; there is nothing to download.
func (NopArchive) DownloadURL(_ context.Context, _ string, expiresIn time.Duration) (string, time.Time, error) {
	return "", time.Now().Add(expiresIn), nil
}

// Ensure NopArchive implements PayloadArchive
var _ PayloadArchive = (*NopArchive)(nil)
