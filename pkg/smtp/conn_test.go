// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package smtp

import (
	"fmt"
	"net"
	"net/textproto"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spoolbox/spoolbox/pkg/maildir"
)

func _fl(depth int) string {
	_, file, line, _ := runtime.Caller(depth + 1)
	return fmt.Sprintf("[%s:%d]", filepath.Base(file), line)
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Errorf("%s unexpected error: %v", _fl(1), err)
	}
}

func readCodeLine(t testing.TB, conn *textproto.Conn, code int) string {
	actual, message, err := conn.ReadCodeLine(code)
	if err != nil {
		t.Errorf("%s ReadCodeLine error, expected %d, got %d: %v", _fl(1), code, actual, err)
	}
	return message
}

// runServer creates a TCP socket, runs a listening server, and returns
// the listener. The server exits when the listener is closed.
func runServer(t *testing.T, server Server) net.Listener {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
		return nil
	}

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go AcceptConnection(conn, server, zap.NewNop())
		}
	}()

	return l
}

type testServer struct {
	EmptyServerCallbacks
	blockList []string
	delivered []*maildir.Message
	deliverRc *ReplyLine
}

func (s *testServer) Name() string {
	return "test-server"
}

func (s *testServer) VerifyAddress(addr string) ReplyLine {
	for _, block := range s.blockList {
		if strings.EqualFold(block, addr) {
			return ReplyBadMailbox
		}
	}
	return ReplyOK
}

func (s *testServer) DeliverMessage(msg *maildir.Message) *ReplyLine {
	s.delivered = append(s.delivered, msg)
	return s.deliverRc
}

func createClient(t *testing.T, addr net.Addr) *textproto.Conn {
	conn, err := textproto.Dial(addr.Network(), addr.String())
	if err != nil {
		t.Fatal(err)
		return nil
	}
	return conn
}

type requestResponse struct {
	request      string
	responseCode int
	handler      func(testing.TB, *textproto.Conn)
}

func runTableTest(t testing.TB, conn *textproto.Conn, seq []requestResponse) {
	for i, rr := range seq {
		ok(t, conn.PrintfLine("%s", rr.request))
		if rr.handler != nil {
			rr.handler(t, conn)
		} else {
			readCodeLine(t, conn, rr.responseCode)
		}
		if t.Failed() {
			t.Logf("%s case %d", _fl(1), i)
		}
	}
}

func TestScenarioTypical(t *testing.T) {
	s := testServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())

	message := readCodeLine(t, conn, 220)
	if !strings.HasPrefix(message, s.Name()) {
		t.Errorf("greeting does not start with server name, got %q", message)
	}

	runTableTest(t, conn, []requestResponse{
		{"HELO client.example.com", 250, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RCPT TO:<v@h>", 250, nil},
		{"DATA", 354, func(t testing.TB, conn *textproto.Conn) {
			readCodeLine(t, conn, 354)
			ok(t, conn.PrintfLine("Subject: hi"))
			ok(t, conn.PrintfLine(""))
			ok(t, conn.PrintfLine("hello"))
			ok(t, conn.PrintfLine("."))
			readCodeLine(t, conn, 250)
		}},
		{"QUIT", 221, nil},
	})

	if len(s.delivered) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(s.delivered))
	}
	msg := s.delivered[0]
	if got := msg.From(); got != "u@h" {
		t.Errorf("expected sender u@h, got %q", got)
	}
	if rcpt := msg.Recipients(); len(rcpt) != 1 || rcpt[0] != "v@h" {
		t.Errorf("expected recipients [v@h], got %v", rcpt)
	}
	if got := msg.Subject(); got != "hi" {
		t.Errorf("expected subject hi, got %q", got)
	}
	if got := msg.Body(); got != "Subject: hi\r\n\r\nhello" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestPhaseGuards(t *testing.T) {
	s := testServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	runTableTest(t, conn, []requestResponse{
		// Nothing but a greeting is legal from the initial state.
		{"MAIL FROM:<u@h>", 503, nil},
		{"RCPT TO:<v@h>", 503, nil},
		{"DATA", 503, nil},
		{"RSET", 503, nil},
		{"HELO a", 250, nil},
		// RCPT before MAIL.
		{"RCPT TO:<v@h>", 503, nil},
		// DATA with no recipients.
		{"MAIL FROM:<u@h>", 250, nil},
		{"DATA", 503, nil},
		// A second MAIL just replaces the sender.
		{"MAIL FROM:<w@h>", 250, nil},
		{"RCPT TO:<v@h>", 250, nil},
		{"QUIT", 221, nil},
	})

	if len(s.delivered) != 0 {
		t.Errorf("no messages should have been delivered, got %d", len(s.delivered))
	}
}

func TestSyntaxErrors(t *testing.T) {
	s := testServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	runTableTest(t, conn, []requestResponse{
		{"HELO", 501, nil},
		{"HELO a", 250, nil},
		{"MAIL FROM:<no-at-sign>", 501, nil},
		{"MAIL FROM:<@h>", 501, nil},
		{"MAIL FROM:<u@>", 501, nil},
		{"MAIL FROM:", 501, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RCPT TO:bogus", 501, nil},
		{"WHAT", 502, nil},
		{"", 500, nil},
	})
}

func TestGreetingResetsTransaction(t *testing.T) {
	s := testServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	runTableTest(t, conn, []requestResponse{
		{"HELO a", 250, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RCPT TO:<v@h>", 250, nil},
		{"EHLO a", 250, nil},
		// The transaction was discarded, so DATA is out of sequence.
		{"DATA", 503, nil},
	})
}

func TestRsetClearsTransaction(t *testing.T) {
	s := testServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	runTableTest(t, conn, []requestResponse{
		{"HELO a", 250, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RSET", 250, nil},
		{"RCPT TO:<v@h>", 503, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RCPT TO:<v@h>", 250, nil},
	})
}

func TestDotStuffedBody(t *testing.T) {
	s := testServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	runTableTest(t, conn, []requestResponse{
		{"HELO a", 250, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RCPT TO:<v@h>", 250, nil},
		{"DATA", 354, func(t testing.TB, conn *textproto.Conn) {
			readCodeLine(t, conn, 354)
			w := conn.DotWriter()
			_, err := w.Write([]byte(".leading dot\r\nplain\r\n..two dots\r\n"))
			ok(t, err)
			ok(t, w.Close())
			readCodeLine(t, conn, 250)
		}},
	})

	if len(s.delivered) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(s.delivered))
	}
	if got := s.delivered[0].Body(); got != ".leading dot\r\nplain\r\n..two dots" {
		t.Errorf("dot-stuffing was not undone, body %q", got)
	}
}

func TestMultipleMessagesPerConnection(t *testing.T) {
	s := testServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	sendMessage := func(rcpt string) []requestResponse {
		return []requestResponse{
			{"MAIL FROM:<u@h>", 250, nil},
			{"RCPT TO:<" + rcpt + ">", 250, nil},
			{"DATA", 354, func(t testing.TB, conn *textproto.Conn) {
				readCodeLine(t, conn, 354)
				ok(t, conn.PrintfLine("hello"))
				ok(t, conn.PrintfLine("."))
				readCodeLine(t, conn, 250)
			}},
		}
	}

	seq := []requestResponse{{"HELO a", 250, nil}}
	seq = append(seq, sendMessage("v@h")...)
	seq = append(seq, sendMessage("w@h")...)
	runTableTest(t, conn, seq)

	if len(s.delivered) != 2 {
		t.Fatalf("expected 2 delivered messages, got %d", len(s.delivered))
	}
	if rcpt := s.delivered[1].Recipients(); rcpt[0] != "w@h" {
		t.Errorf("expected second message for w@h, got %v", rcpt)
	}
}

func TestVerifyAddressRejection(t *testing.T) {
	s := testServer{blockList: []string{"blocked@h"}}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	runTableTest(t, conn, []requestResponse{
		{"HELO a", 250, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RCPT TO:<blocked@h>", 550, nil},
		{"RCPT TO:<v@h>", 250, nil},
	})
}

func TestDeliveryFailureReply(t *testing.T) {
	s := testServer{deliverRc: &ReplyTooBusy}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	runTableTest(t, conn, []requestResponse{
		{"HELO a", 250, nil},
		{"MAIL FROM:<u@h>", 250, nil},
		{"RCPT TO:<v@h>", 250, nil},
		{"DATA", 354, func(t testing.TB, conn *textproto.Conn) {
			readCodeLine(t, conn, 354)
			ok(t, conn.PrintfLine("hello"))
			ok(t, conn.PrintfLine("."))
			readCodeLine(t, conn, 452)
		}},
	})
}

type timeoutServer struct {
	testServer
}

func (s *timeoutServer) IdleTimeout() time.Duration {
	return 50 * time.Millisecond
}

func TestIdleTimeoutClosesConnection(t *testing.T) {
	s := timeoutServer{}
	l := runServer(t, &s)
	defer l.Close()

	conn := createClient(t, l.Addr())
	readCodeLine(t, conn, 220)

	ok(t, conn.PrintfLine("HELO a"))
	readCodeLine(t, conn, 250)

	// Wait past the server's deadline without sending anything.
	time.Sleep(150 * time.Millisecond)

	if _, err := conn.ReadLine(); err == nil {
		t.Error("expected connection to be closed after idle timeout")
	}
}

func TestSniffSubject(t *testing.T) {
	cases := []struct {
		lines []string
		want  string
	}{
		{[]string{"Subject: hi", "", "body"}, "hi"},
		{[]string{"subject:lower", "", "body"}, "lower"},
		{[]string{"SUBJECT:   padded  ", "", "body"}, "padded"},
		{[]string{"From: a@b", "", "no subject here"}, ""},
		{nil, ""},
	}
	for i, c := range cases {
		if got := SniffSubject(c.lines); got != c.want {
			t.Errorf("case %d: want %q, got %q", i, c.want, got)
		}
	}
}

func TestParsePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"<u@h>", "u@h", true},
		{"u@h", "u@h", true},
		{"  <u@h>  ", "u@h", true},
		{"< u@h >", "u@h", true},
		{"<>", "", false},
		{"<u@>", "", false},
		{"<@h>", "", false},
		{"no-at", "", false},
		{"", "", false},
	}
	for i, c := range cases {
		got, ok := ParsePath(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("case %d: ParsePath(%q) = %q, %v; want %q, %v", i, c.in, got, ok, c.want, c.ok)
		}
	}
}
