// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package smtp

import (
	"net"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spoolbox/spoolbox/pkg/maildir"
)

type state int

const (
	stateInitial state = iota
	stateGreeted
	stateSenderSet
	stateRecipientsSet
)

type connection struct {
	server Server

	tp *textproto.Conn
	nc net.Conn

	log *zap.Logger

	state
	line string

	mailFrom string
	rcptTo   []string
}

// AcceptConnection implements a submission connection, parsing the
// client's commands over `netConn` and handing completed messages to
// the `server` for delivery.
func AcceptConnection(netConn net.Conn, server Server, log *zap.Logger) {
	log = log.With(zap.Stringer("client", netConn.RemoteAddr()))
	conn := connection{
		server: server,
		tp:     textproto.NewConn(netConn),
		nc:     netConn,
		state:  stateInitial,
		log:    log,
	}

	conn.log.Info("accepted connection")
	conn.reply(ReplyLine{220, server.Name() + " ready"})

	for {
		conn.extendDeadline()

		var err error
		conn.line, err = conn.tp.ReadLine()
		if err != nil {
			conn.log.Error("ReadLine()", zap.Error(err))
			conn.tp.Close()
			return
		}

		line := strings.TrimSpace(conn.line)
		if line == "" {
			conn.reply(ReplyEmpty)
			continue
		}
		up := strings.ToUpper(line)

		var cmd string
		switch {
		case strings.HasPrefix(up, "HELO "), strings.HasPrefix(up, "EHLO "):
			cmd = up[:4]
		default:
			cmd, _, _ = strings.Cut(up, " ")
		}
		conn.log = log.With(zap.String("command", cmd))
		server.Metrics().CommandProcessed("smtp", cmd)

		switch {
		case cmd == "HELO" || cmd == "EHLO":
			conn.doGreet(line, up)
		case strings.HasPrefix(up, "MAIL FROM:"):
			conn.doMAIL(line)
		case strings.HasPrefix(up, "RCPT TO:"):
			conn.doRCPT(line)
		case up == "DATA":
			conn.doDATA()
		case up == "RSET":
			conn.doRSET()
		case up == "NOOP":
			conn.reply(ReplyOK)
		case up == "QUIT":
			conn.reply(ReplyBye)
			conn.tp.Close()
			return
		default:
			conn.reply(ReplyNotImplemented)
		}
	}
}

func (conn *connection) reply(reply ReplyLine) {
	conn.log.Info("reply", zap.Int("code", reply.Code))
	conn.tp.PrintfLine("%d %s", reply.Code, reply.Message)
}

func (conn *connection) extendDeadline() {
	if d := conn.server.IdleTimeout(); d > 0 {
		conn.nc.SetReadDeadline(time.Now().Add(d))
	}
}

// doGreet accepts HELO/EHLO from any phase, discarding an in-progress
// transaction.
func (conn *connection) doGreet(line, up string) {
	if !strings.HasPrefix(up, "HELO ") && !strings.HasPrefix(up, "EHLO ") {
		conn.reply(ReplyBadSyntax)
		return
	}
	conn.resetTransaction()
	conn.state = stateGreeted
	conn.reply(ReplyLine{250, conn.server.Name() + " hello " + strings.TrimSpace(line[5:])})
}

func (conn *connection) doMAIL(line string) {
	if conn.state != stateGreeted && conn.state != stateSenderSet {
		conn.reply(ReplyBadSequence)
		return
	}

	addr, ok := ParsePath(line[len("MAIL FROM:"):])
	if !ok {
		conn.reply(ReplyLine{501, "MAIL FROM:<user@host>"})
		return
	}
	if reply := conn.server.VerifyAddress(addr); reply != ReplyOK {
		conn.reply(reply)
		return
	}

	conn.mailFrom = addr
	conn.state = stateSenderSet
	conn.reply(ReplyOK)
}

func (conn *connection) doRCPT(line string) {
	if conn.state != stateSenderSet && conn.state != stateRecipientsSet {
		conn.reply(ReplyBadSequence)
		return
	}

	addr, ok := ParsePath(line[len("RCPT TO:"):])
	if !ok {
		conn.reply(ReplyLine{501, "RCPT TO:<user@host>"})
		return
	}
	if reply := conn.server.VerifyAddress(addr); reply != ReplyOK {
		conn.reply(reply)
		return
	}

	conn.rcptTo = append(conn.rcptTo, addr)
	conn.state = stateRecipientsSet
	conn.reply(ReplyOK)
}

func (conn *connection) doDATA() {
	if conn.state != stateRecipientsSet || conn.mailFrom == "" || len(conn.rcptTo) == 0 {
		conn.reply(ReplyBadSequence)
		return
	}

	conn.reply(ReplyDataPrompt)
	conn.extendDeadline()

	// ReadDotLines undoes the client's dot-stuffing and consumes the
	// terminating "." line.
	lines, err := conn.tp.ReadDotLines()
	if err != nil {
		conn.log.Error("failed to read message data", zap.Error(err))
		conn.reply(ReplyLinkLost)
		conn.tp.Close()
		return
	}
	body := strings.Join(lines, "\r\n")

	msg := maildir.NewMessage(conn.mailFrom, conn.rcptTo, SniffSubject(lines), body)
	conn.log.Info("received message",
		zap.String("from", msg.From()),
		zap.Int("recipients", len(msg.Recipients())))

	if reply := conn.server.DeliverMessage(msg); reply != nil {
		conn.reply(*reply)
	} else {
		conn.reply(ReplyStored)
	}

	conn.resetTransaction()
	conn.state = stateGreeted
}

func (conn *connection) doRSET() {
	if conn.state == stateInitial {
		conn.reply(ReplyBadSequence)
		return
	}
	conn.resetTransaction()
	conn.state = stateGreeted
	conn.reply(ReplyOK)
}

func (conn *connection) resetTransaction() {
	conn.mailFrom = ""
	conn.rcptTo = nil
}

// ParsePath extracts a local@domain address from a command argument,
// tolerating a surrounding angle-bracket pair.
func ParsePath(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">") {
		t = strings.TrimSpace(t[1 : len(t)-1])
	}
	at := strings.LastIndex(t, "@")
	if at <= 0 || at == len(t)-1 {
		return "", false
	}
	return t, true
}

// SniffSubject extracts the subject from the first header-like line of
// a captured message body.
func SniffSubject(lines []string) string {
	for _, line := range lines {
		if len(line) >= 8 && strings.EqualFold(line[:8], "Subject:") {
			return strings.TrimSpace(line[8:])
		}
	}
	return ""
}
