// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	perrors "github.com/absmach/xmpproxy/pkg/errors"
)

var errNoStream = errors.New("backend did not open a stream")

// classify prefixes err and marks deadline errors as timeouts.
func classify(err error, message string) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		err = errors.Join(perrors.ErrTimeout, err)
	}
	return perrors.Wrap(err, message)
}

// XMPPBackend checks an XMPP server by opening a client stream to domain and
// waiting for the server's stream header.
func XMPPBackend(addr, domain string, timeout time.Duration) CheckFunc {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	header := "<?xml version='1.0'?><stream:stream xmlns=\"jabber:client\" " +
		"xmlns:stream=\"http://etherx.jabber.org/streams\" version=\"1.0\" to=\"" + domain + "\">"

	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return classify(err, "dial "+addr)
		}
		defer conn.Close()

		deadline := time.Now().Add(timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		conn.SetDeadline(deadline)

		if _, err := conn.Write([]byte(header)); err != nil {
			return classify(err, "write stream header")
		}

		var (
			got strings.Builder
			buf = make([]byte, 1024)
		)
		for got.Len() < 16*1024 {
			n, err := conn.Read(buf)
			got.Write(buf[:n])
			if strings.Contains(got.String(), "<stream:stream") {
				conn.Write([]byte("</stream:stream>"))
				return nil
			}
			if err != nil {
				return classify(err, "read stream header")
			}
		}
		return errNoStream
	}
}
