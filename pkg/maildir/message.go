// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package maildir

import (
	"strings"
	"time"
)

// Message is one mail message accepted for local delivery. It is
// immutable after construction; the durable artifact is the file
// written by Mailbox.Deliver, not this value.
type Message struct {
	from    string
	to      []string
	subject string
	body    string
}

// NewMessage builds a message. The recipient list is copied. A nil
// recipient slice yields a message with no recipients, which the
// delivery worker treats as a no-op.
func NewMessage(from string, to []string, subject, body string) *Message {
	m := &Message{
		from:    from,
		subject: subject,
		body:    body,
	}
	m.to = append(m.to, to...)
	return m
}

func (m *Message) From() string    { return m.from }
func (m *Message) Subject() string { return m.subject }
func (m *Message) Body() string    { return m.body }

// Recipients returns a copy of the recipient address list.
func (m *Message) Recipients() []string {
	to := make([]string, len(m.to))
	copy(to, m.to)
	return to
}

// WireFormat serializes the message as CRLF-terminated header lines, a
// blank separator line, and the CRLF-normalized body. POP3 RETR sends
// exactly what is stored here.
func (m *Message) WireFormat() []byte {
	var sb strings.Builder
	sb.WriteString("From: " + m.from + "\r\n")
	sb.WriteString("To: " + strings.Join(m.to, ", ") + "\r\n")
	if strings.TrimSpace(m.subject) != "" {
		sb.WriteString("Subject: " + m.subject + "\r\n")
	}
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(NormalizeCRLF(m.body))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// NormalizeCRLF rewrites any mix of line endings to CRLF.
func NormalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
