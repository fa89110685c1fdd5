// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package smtp

import (
	"fmt"
	"time"

	"github.com/spoolbox/spoolbox/pkg/maildir"
	"github.com/spoolbox/spoolbox/pkg/metrics"
)

// ReplyLine is a single SMTP status response.
type ReplyLine struct {
	Code    int
	Message string
}

func (l ReplyLine) String() string {
	return fmt.Sprintf("%d %s", l.Code, l.Message)
}

var (
	ReplyOK             = ReplyLine{250, "ok"}
	ReplyStored         = ReplyLine{250, "stored"}
	ReplyDataPrompt     = ReplyLine{354, "end with ."}
	ReplyBye            = ReplyLine{221, "bye"}
	ReplyLinkLost       = ReplyLine{451, "link lost"}
	ReplyTooBusy        = ReplyLine{452, "insufficient storage, try again later"}
	ReplyEmpty          = ReplyLine{500, "empty command"}
	ReplyBadSyntax      = ReplyLine{501, "syntax error"}
	ReplyNotImplemented = ReplyLine{502, "command not implemented"}
	ReplyBadSequence    = ReplyLine{503, "bad sequence of commands"}
	ReplyBadMailbox     = ReplyLine{550, "mailbox unavailable"}
)

// Server provides the callbacks a submission connection needs.
type Server interface {
	// Name is the server name advertised in the greeting banner.
	Name() string

	// VerifyAddress can reject a sender or recipient address beyond
	// the syntactic check the connection already performs.
	VerifyAddress(addr string) ReplyLine

	// DeliverMessage hands a completed message to the delivery
	// pipeline. A non-nil reply is sent to the client instead of the
	// stored acknowledgment.
	DeliverMessage(msg *maildir.Message) *ReplyLine

	// IdleTimeout bounds the wait for each client line. Zero means no
	// timeout.
	IdleTimeout() time.Duration

	// Metrics is the collector commands and deliveries are recorded
	// against.
	Metrics() metrics.Collector
}

// EmptyServerCallbacks provides default implementations of the
// optional Server callbacks.
type EmptyServerCallbacks struct{}

func (*EmptyServerCallbacks) VerifyAddress(string) ReplyLine {
	return ReplyOK
}

func (*EmptyServerCallbacks) IdleTimeout() time.Duration {
	return 5 * time.Minute
}

func (*EmptyServerCallbacks) Metrics() metrics.Collector {
	return metrics.NopCollector{}
}
