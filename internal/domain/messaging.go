// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "context"

// StorageEventPublisher forwards storage events to an external message bus.
type StorageEventPublisher interface {
	PublishStorageEvent(ctx context.Context, event StorageEvent) error
	PublisherReady() bool
}
