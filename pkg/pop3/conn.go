// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package pop3

import (
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
)

type state int

const (
	stateAuth state = iota
	stateTxn
	stateUpdate
)

const (
	errStateAuth  = "auth required"
	errStateTxn   = "not in TRANSACTION"
	errSyntax     = "syntax error"
	errNoMsg      = "no such message"
	errDeletedMsg = "no such message - deleted"
)

type connection struct {
	po PostOffice
	mb Mailbox

	tp *textproto.Conn
	nc net.Conn

	log *zap.Logger

	state
	line string

	user string

	// Shadow copy of the store's pending-delete set, used to hide
	// marked indices from STAT/LIST/RETR for the rest of the session.
	deleted map[int]struct{}
}

// AcceptConnection implements a POP3 server connection, parsing the
// client requests sent over `netConn` and providing access to the
// mailboxes in the specified `PostOffice`.
func AcceptConnection(netConn net.Conn, po PostOffice, log *zap.Logger) {
	log = log.With(zap.Stringer("client", netConn.RemoteAddr()))
	conn := connection{
		po:      po,
		tp:      textproto.NewConn(netConn),
		nc:      netConn,
		state:   stateAuth,
		log:     log,
		deleted: make(map[int]struct{}),
	}

	conn.log.Info("accepted connection")
	conn.ok(fmt.Sprintf("%s POP3 ready", po.Name()))

	var err error

	for {
		if d := po.IdleTimeout(); d > 0 {
			netConn.SetReadDeadline(time.Now().Add(d))
		}

		conn.line, err = conn.tp.ReadLine()
		if err != nil {
			conn.log.Error("ReadLine()", zap.Error(err))
			conn.tp.Close()
			return
		}

		var cmd string
		if _, err := fmt.Sscanf(conn.line, "%s", &cmd); err != nil {
			conn.err("invalid command")
			continue
		}

		conn.log = log.With(zap.String("command", cmd))
		po.Metrics().CommandProcessed("pop3", strings.ToUpper(cmd))

		switch strings.ToUpper(cmd) {
		case "QUIT":
			conn.doQUIT()
			return
		case "USER":
			conn.doUSER()
		case "PASS":
			conn.doPASS()
		case "STAT":
			conn.doSTAT()
		case "LIST":
			conn.doLIST()
		case "RETR":
			conn.doRETR()
		case "DELE":
			conn.doDELE()
		case "NOOP":
			conn.ok("")
		case "RSET":
			conn.doRSET()
		case "UIDL":
			conn.doUIDL()
		case "CAPA":
			conn.doCAPA()
		default:
			if conn.state == stateAuth {
				conn.err(errStateAuth)
			} else {
				conn.err("unknown command")
			}
		}
	}
}

func (conn *connection) ok(msg string) {
	conn.log.Info("ok", zap.String("reply", msg))
	if len(msg) > 0 {
		msg = " " + msg
	}
	conn.tp.PrintfLine("+OK%s", msg)
}

func (conn *connection) err(msg string) {
	conn.log.Error("error", zap.String("message", msg))
	if len(msg) > 0 {
		msg = " " + msg
	}
	conn.tp.PrintfLine("-ERR%s", msg)
}

func (conn *connection) doQUIT() {
	defer conn.tp.Close()

	if conn.state == stateTxn {
		conn.state = stateUpdate
		if err := conn.mb.CommitDeletes(); err != nil {
			conn.log.Error("failed to commit deletes", zap.Error(err))
			conn.err("failed to remove some messages")
			return
		}
	}
	conn.ok("goodbye")
}

func (conn *connection) doUSER() {
	if conn.state != stateAuth {
		conn.err("already authenticated")
		return
	}

	cmd := len("USER ")
	if len(conn.line) < cmd {
		conn.err("invalid user")
		return
	}

	conn.user = strings.TrimSpace(conn.line[cmd:])
	conn.ok("user accepted")
}

func (conn *connection) doPASS() {
	if conn.state != stateAuth {
		conn.err("already authenticated")
		return
	}

	if len(conn.user) == 0 {
		conn.err("no USER")
		return
	}

	cmd := len("PASS ")
	if len(conn.line) < cmd {
		conn.err("invalid pass")
		return
	}

	pass := conn.line[cmd:]
	mbox, err := conn.po.OpenMailbox(conn.user, pass)
	conn.po.Metrics().AuthAttempt(err == nil)
	if err != nil {
		conn.log.Error("failed to open mailbox", zap.Error(err))
		conn.user = ""
		conn.err(err.Error())
		return
	}

	conn.log.Info("authenticated", zap.String("user", conn.user))
	conn.state = stateTxn
	conn.mb = mbox
	conn.deleted = make(map[int]struct{})
	conn.ok(fmt.Sprintf("%s has %d messages", conn.user, conn.mb.Count()))
}

func (conn *connection) doSTAT() {
	if !conn.requireTxn() {
		return
	}

	var num int
	var size int64
	for i := 1; i <= conn.mb.Count(); i++ {
		if _, gone := conn.deleted[i]; gone {
			continue
		}
		sz, err := conn.mb.Size(i)
		if err != nil {
			conn.log.Error("failed to size message", zap.Int("index", i), zap.Error(err))
			continue
		}
		num++
		size += sz
	}

	conn.ok(fmt.Sprintf("%d %d", num, size))
}

func (conn *connection) doLIST() {
	if !conn.requireTxn() {
		return
	}

	var cmd string
	var id int
	if n, _ := fmt.Sscanf(conn.line, "%s %d", &cmd, &id); n == 2 {
		if !conn.inRange(id) {
			conn.err(errNoMsg)
			return
		}
		if _, gone := conn.deleted[id]; gone {
			conn.err(errDeletedMsg)
			return
		}
		size, err := conn.mb.Size(id)
		if err != nil {
			conn.err("list failed")
			return
		}
		conn.ok(fmt.Sprintf("%d %d", id, size))
		return
	}

	conn.ok("scan listing follows")
	for i := 1; i <= conn.mb.Count(); i++ {
		if _, gone := conn.deleted[i]; gone {
			continue
		}
		size, err := conn.mb.Size(i)
		if err != nil {
			continue
		}
		conn.tp.PrintfLine("%d %d", i, size)
	}
	conn.tp.PrintfLine(".")
}

func (conn *connection) doRETR() {
	if !conn.requireTxn() {
		return
	}

	id, ok := conn.requestedMessage()
	if !ok {
		return
	}

	data, err := conn.mb.Read(id)
	if err != nil {
		conn.log.Error("failed to retrieve message", zap.Error(err))
		conn.err("read failed")
		return
	}

	conn.po.Metrics().MessageRetrieved(int64(len(data)))
	conn.ok(fmt.Sprintf("%d octets", len(data)))

	// DotWriter applies dot-stuffing, mirroring the unescape done on
	// the submission side.
	w := conn.tp.DotWriter()
	w.Write(data)
	w.Close()
}

func (conn *connection) doDELE() {
	if !conn.requireTxn() {
		return
	}

	id, ok := conn.requestedMessage()
	if !ok {
		return
	}

	if err := conn.mb.MarkDelete(id); err != nil {
		conn.log.Error("failed to mark message deleted", zap.Error(err))
		conn.err("delete failed")
		return
	}
	conn.deleted[id] = struct{}{}
	conn.po.Metrics().MessageDeleted()
	conn.log.Info("marked message deleted", zap.Int("index", id))
	conn.ok("deleted")
}

func (conn *connection) doRSET() {
	if !conn.requireTxn() {
		return
	}
	conn.mb.UnmarkAll()
	conn.deleted = make(map[int]struct{})
	conn.log.Info("reset")
	conn.ok("")
}

func (conn *connection) doUIDL() {
	if !conn.requireTxn() {
		return
	}

	conn.ok("unique-id listing")
	for i := 1; i <= conn.mb.Count(); i++ {
		if _, gone := conn.deleted[i]; gone {
			continue
		}
		locator, err := conn.mb.Locator(i)
		if err != nil {
			continue
		}
		conn.tp.PrintfLine("%d %s", i, locator)
	}
	conn.tp.PrintfLine(".")
}

func (conn *connection) doCAPA() {
	conn.ok("capability list")

	caps := []string{
		"USER",
		"UIDL",
		".",
	}
	for _, c := range caps {
		conn.tp.PrintfLine("%s", c)
	}
}

// requestedMessage parses the index argument of the current line and
// checks it against the snapshot and the session's delete marks.
func (conn *connection) requestedMessage() (int, bool) {
	var cmd string
	var id int
	if _, err := fmt.Sscanf(conn.line, "%s %d", &cmd, &id); err != nil {
		conn.err(errSyntax)
		return 0, false
	}

	if !conn.inRange(id) {
		conn.err(errNoMsg)
		return 0, false
	}
	if _, gone := conn.deleted[id]; gone {
		conn.err(errDeletedMsg)
		return 0, false
	}
	return id, true
}

// requireTxn rejects transaction commands issued before
// authentication completes.
func (conn *connection) requireTxn() bool {
	switch conn.state {
	case stateTxn:
		return true
	case stateAuth:
		conn.err(errStateAuth)
	default:
		conn.err(errStateTxn)
	}
	return false
}

func (conn *connection) inRange(id int) bool {
	return id >= 1 && id <= conn.mb.Count()
}
