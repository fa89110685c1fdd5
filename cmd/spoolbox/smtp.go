// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spoolbox/spoolbox/pkg/config"
	"github.com/spoolbox/spoolbox/pkg/maildir"
	"github.com/spoolbox/spoolbox/pkg/metrics"
	"github.com/spoolbox/spoolbox/pkg/queue"
	"github.com/spoolbox/spoolbox/pkg/smtp"
)

func runSMTPServer(cfg config.Config, accounts *accountStore, q *queue.Queue, log *zap.Logger, mc metrics.Collector) <-chan ServerControlMessage {
	server := smtpServer{
		config:      cfg,
		accounts:    accounts,
		queue:       q,
		log:         log.With(zap.String("server", "smtp")),
		mc:          mc,
		controlChan: make(chan ServerControlMessage),
	}
	go server.run()
	return server.controlChan
}

type smtpServer struct {
	config   config.Config
	accounts *accountStore
	queue    *queue.Queue

	log *zap.Logger
	mc  metrics.Collector

	controlChan chan ServerControlMessage
}

func (server *smtpServer) run() {
	server.log.Info("starting server", zap.String("address", server.config.SMTPAddr))

	l, err := net.Listen("tcp", server.config.SMTPAddr)
	if err != nil {
		server.log.Error("listen", zap.Error(err))
		server.controlChan <- ServerControlFatalError
		return
	}
	server.serve(l)
}

func (server *smtpServer) serve(l net.Listener) {
	connChan := make(chan net.Conn)
	go RunAcceptLoop(l, connChan, server.log)

	reloadChan := CreateReloadSignal()

	for {
		select {
		case <-reloadChan:
			if err := server.accounts.Reload(); err != nil {
				server.log.Error("failed to reload accounts", zap.Error(err))
			} else {
				server.log.Info("reloaded accounts")
			}
		case conn, ok := <-connChan:
			if !ok {
				server.controlChan <- ServerControlFatalError
				return
			}
			server.mc.ConnectionOpened("smtp")
			go func() {
				smtp.AcceptConnection(conn, server, server.log)
				server.mc.ConnectionClosed("smtp")
			}()
		}
	}
}

func (server *smtpServer) Name() string {
	return server.config.Hostname
}

func (server *smtpServer) IdleTimeout() time.Duration {
	return server.config.Timeouts.IdleTimeout()
}

func (server *smtpServer) Metrics() metrics.Collector {
	return server.mc
}

// VerifyAddress rejects local recipients that have no account. Remote
// addresses pass; delivery skips them later.
func (server *smtpServer) VerifyAddress(addr string) smtp.ReplyLine {
	user, domain, ok := queue.SplitAddress(addr)
	if !ok {
		return smtp.ReplyBadMailbox
	}
	if !strings.EqualFold(domain, server.config.Domain) {
		return smtp.ReplyOK
	}
	if !server.accounts.Has(user) {
		return smtp.ReplyBadMailbox
	}
	return smtp.ReplyOK
}

func (server *smtpServer) DeliverMessage(msg *maildir.Message) *smtp.ReplyLine {
	if err := server.queue.Enqueue(msg); err != nil {
		server.log.Error("failed to enqueue message", zap.Error(err))
		return &smtp.ReplyTooBusy
	}
	return nil
}
