// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package metrics defines the Collector interface for recording mail
// server metrics, with no-op and Prometheus implementations.
package metrics

// Collector records server activity. Implementations must be safe for
// concurrent use.
type Collector interface {
	// Connection metrics, labeled by protocol ("smtp" or "pop3").
	ConnectionOpened(protocol string)
	ConnectionClosed(protocol string)

	// Command metrics.
	CommandProcessed(protocol, command string)

	// Authentication metrics.
	AuthAttempt(success bool)

	// Delivery pipeline metrics.
	MessageEnqueued()
	MessageDropped()
	QueueDepth(depth int)
	MessageDelivered(user string)
	RecipientSkipped()
	DeliveryFailed()

	// Retrieval metrics.
	MessageRetrieved(sizeBytes int64)
	MessageDeleted()
}
