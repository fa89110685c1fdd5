// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/spoolbox/spoolbox/pkg/config"
	"github.com/spoolbox/spoolbox/pkg/maildir"
	"github.com/spoolbox/spoolbox/pkg/metrics"
	"github.com/spoolbox/spoolbox/pkg/pop3"
)

func runPOP3Server(cfg config.Config, accounts *accountStore, log *zap.Logger, mc metrics.Collector) <-chan ServerControlMessage {
	server := pop3Server{
		config:      cfg,
		accounts:    accounts,
		log:         log.With(zap.String("server", "pop3")),
		mc:          mc,
		controlChan: make(chan ServerControlMessage),
	}
	go server.run()
	return server.controlChan
}

type pop3Server struct {
	config   config.Config
	accounts *accountStore

	log *zap.Logger
	mc  metrics.Collector

	controlChan chan ServerControlMessage
}

func (server *pop3Server) run() {
	server.log.Info("starting server", zap.String("address", server.config.POP3Addr))

	l, err := net.Listen("tcp", server.config.POP3Addr)
	if err != nil {
		server.log.Error("listen", zap.Error(err))
		server.controlChan <- ServerControlFatalError
		return
	}
	server.serve(l)
}

func (server *pop3Server) serve(l net.Listener) {
	connChan := make(chan net.Conn)
	go RunAcceptLoop(l, connChan, server.log)

	reloadChan := CreateReloadSignal()

	for {
		select {
		case <-reloadChan:
			server.log.Info("restarting listener")
			l.Close()
			server.controlChan <- ServerControlRestart
			return
		case conn, ok := <-connChan:
			if !ok {
				server.controlChan <- ServerControlFatalError
				return
			}
			server.mc.ConnectionOpened("pop3")
			go func() {
				pop3.AcceptConnection(conn, server, server.log)
				server.mc.ConnectionClosed("pop3")
			}()
		}
	}
}

func (server *pop3Server) Name() string {
	return server.config.Hostname
}

func (server *pop3Server) IdleTimeout() time.Duration {
	return server.config.Timeouts.IdleTimeout()
}

func (server *pop3Server) Metrics() metrics.Collector {
	return server.mc
}

// OpenMailbox validates the credential pair and opens a fresh snapshot
// of the user's maildrop. The reply is deliberately vague about which
// half of the pair was wrong.
func (server *pop3Server) OpenMailbox(user, pass string) (pop3.Mailbox, error) {
	if !server.accounts.Validate(user, pass) {
		return nil, errors.New("invalid credentials")
	}

	mb, err := maildir.Open(server.config.SpoolDir, user)
	if err != nil {
		server.log.Error("failed to open mailbox",
			zap.String("user", user),
			zap.Error(err))
		return nil, errors.New("mailbox unavailable")
	}
	if err := mb.Load(); err != nil {
		server.log.Error("failed to load mailbox",
			zap.String("user", user),
			zap.Error(err))
		return nil, errors.New("mailbox unavailable")
	}
	return mb, nil
}
