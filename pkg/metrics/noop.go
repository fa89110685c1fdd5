// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package metrics

// NopCollector discards all metrics. Used when metrics are disabled
// and in tests.
type NopCollector struct{}

var _ Collector = NopCollector{}

func (NopCollector) ConnectionOpened(string)         {}
func (NopCollector) ConnectionClosed(string)         {}
func (NopCollector) CommandProcessed(string, string) {}
func (NopCollector) AuthAttempt(bool)                {}
func (NopCollector) MessageEnqueued()                {}
func (NopCollector) MessageDropped()                 {}
func (NopCollector) QueueDepth(int)                  {}
func (NopCollector) MessageDelivered(string)         {}
func (NopCollector) RecipientSkipped()               {}
func (NopCollector) DeliveryFailed()                 {}
func (NopCollector) MessageRetrieved(int64)          {}
func (NopCollector) MessageDeleted()                 {}
