// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package queue

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spoolbox/spoolbox/pkg/maildir"
	"github.com/spoolbox/spoolbox/pkg/metrics"
)

// Opener supplies the mailbox for a local user. The server process
// implements this with its mailbox registry so concurrent deliveries
// to one user share a serialized Mailbox instance.
type Opener interface {
	OpenMailbox(user string) (*maildir.Mailbox, error)
}

// Worker drains the delivery queue and writes messages into recipient
// maildrops. Each recipient is an independent attempt: a failure is
// logged and never aborts delivery to the other recipients, and the
// message is never re-enqueued.
type Worker struct {
	queue   *Queue
	opener  Opener
	domain  string
	log     *zap.Logger
	metrics metrics.Collector
}

// NewWorker creates a delivery worker serving the given local domain
// (matched case-insensitively against recipient domains).
func NewWorker(q *Queue, opener Opener, domain string, log *zap.Logger, mc metrics.Collector) *Worker {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Worker{
		queue:   q,
		opener:  opener,
		domain:  strings.ToLower(domain),
		log:     log,
		metrics: mc,
	}
}

// Run delivers queued messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("delivery worker started")
	for {
		msg, ok := w.queue.Dequeue(ctx)
		if !ok {
			w.log.Info("delivery worker stopped")
			return
		}
		w.Deliver(msg)
	}
}

// Deliver writes one message into every local recipient's maildrop.
func (w *Worker) Deliver(msg *maildir.Message) {
	for _, addr := range msg.Recipients() {
		user, domain, ok := SplitAddress(addr)
		if !ok {
			w.log.Warn("bad recipient address", zap.String("address", addr))
			w.metrics.DeliveryFailed()
			continue
		}
		if !strings.EqualFold(domain, w.domain) {
			w.log.Info("skipping remote recipient", zap.String("address", addr))
			w.metrics.RecipientSkipped()
			continue
		}

		mb, err := w.opener.OpenMailbox(user)
		if err != nil {
			w.log.Error("failed to open mailbox",
				zap.String("user", user),
				zap.Error(err))
			w.metrics.DeliveryFailed()
			continue
		}
		if err := mb.Deliver(msg); err != nil {
			w.log.Error("failed to deliver message",
				zap.String("user", user),
				zap.Error(err))
			w.metrics.DeliveryFailed()
			continue
		}

		w.log.Info("delivered message", zap.String("user", user))
		w.metrics.MessageDelivered(user)
	}
}

// SplitAddress splits a local@domain address into its parts, tolerating
// a surrounding angle-bracket pair. The last @ wins, and both parts
// must be non-empty.
func SplitAddress(s string) (local, domain string, ok bool) {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">") {
		t = strings.TrimSpace(t[1 : len(t)-1])
	}
	at := strings.LastIndex(t, "@")
	if at <= 0 || at == len(t)-1 {
		return "", "", false
	}
	return t[:at], t[at+1:], true
}
