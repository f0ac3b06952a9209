// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session drives one accepted TCP connection end to end: the login
// handshake (§4.4), the ingress loop that turns frames into broker events
// (§4.2), and the egress loop that turns broker broadcasts back into frames
// (§4.5). Ingress and egress run as sibling goroutines over an errgroup so
// either one ending tears down the other.
package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"code.hybscloud.com/chatframe/broker"
	"code.hybscloud.com/chatframe/header"
	"code.hybscloud.com/chatframe/spill"
	"code.hybscloud.com/chatframe/wire"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// payloadKinds are the kinds ingress accepts in its steady-state loop (§4.2
// step 2); anything else is a protocol error.
var payloadKinds = map[wire.MessageKind]bool{
	wire.Utf8:  true,
	wire.File:  true,
	wire.Voice: true,
	wire.Image: true,
}

// Serve runs one connection's login handshake, then its ingress and egress
// loops, until either ends or ctx is canceled. It always emits a Logout for
// a confirmed username before returning, and always closes conn.
func Serve(ctx context.Context, conn net.Conn, b *broker.Broker, store *spill.Store, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("remote", conn.RemoteAddr().String())
	defer conn.Close()

	r := bufio.NewReaderSize(conn, wire.BufSize)
	w := bufio.NewWriterSize(conn, wire.BufSize)

	username, egressCh, err := login(ctx, r, w, b)
	if err != nil {
		return errors.Wrap(err, "session: login")
	}
	log = log.WithField("username", username)
	log.Info("session established")

	// Logout must fire as soon as ingress ends, not after both goroutines
	// finish: the egress goroutine only stops when the broker closes its
	// channel on Logout, so waiting for it first would deadlock.
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		err := ingress(gctx, r, b, store, username)
		b.Logout(username)
		return err
	})
	grp.Go(func() error {
		err := egress(gctx, w, egressCh)
		if err != nil {
			// Unblock ingress, which may be waiting on a read.
			conn.Close()
		}
		return err
	})
	err = grp.Wait()

	log.WithError(err).Info("session ended")
	return err
}

// login runs the handshake described in §4.4: loop until the broker confirms
// Login, replying BadLogin/BadUsername/UsernameExists for every rejected
// attempt.
func login(ctx context.Context, r *bufio.Reader, w *bufio.Writer, b *broker.Broker) (string, <-chan *broker.ServerMessage, error) {
	for {
		d, err := wire.ReadDescriptor(r)
		if err != nil {
			return "", nil, errors.Wrap(err, "read login descriptor")
		}
		if d.Kind != wire.Login {
			if err := replyEmpty(w, wire.BadLogin); err != nil {
				return "", nil, err
			}
			continue
		}

		raw, err := wire.ReadExact(r, int(d.HeaderLen))
		if err != nil {
			return "", nil, errors.Wrap(err, "read username")
		}
		if !utf8.Valid(raw) {
			if err := replyEmpty(w, wire.BadUsername); err != nil {
				return "", nil, err
			}
			continue
		}
		username := string(raw)

		kind, egressCh, err := b.Join(ctx, username)
		if err != nil {
			return "", nil, errors.Wrap(err, "join broker")
		}
		if err := replyEmpty(w, kind); err != nil {
			return "", nil, err
		}
		if kind == wire.Login {
			return username, egressCh, nil
		}
	}
}

func replyEmpty(w *bufio.Writer, kind wire.MessageKind) error {
	if err := wire.WriteDescriptor(w, wire.Descriptor{Kind: kind}); err != nil {
		return errors.Wrap(err, "write reply descriptor")
	}
	return w.Flush()
}

// ingress reads frames from r and publishes Message events to b until the
// connection ends or an unexpected kind arrives (§4.2). Returns nil on a
// clean EOF, an error otherwise. An error return cancels the shared errgroup
// context; on either return Serve's Logout closes the egress channel, which
// ends the sibling egress goroutine.
func ingress(ctx context.Context, r *bufio.Reader, b *broker.Broker, store *spill.Store, username string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d, err := wire.ReadDescriptor(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "read descriptor")
		}
		if !payloadKinds[d.Kind] {
			return errors.Errorf("session: unexpected kind %s mid-session", d.Kind)
		}

		filename := ""
		if d.Kind == wire.File {
			raw, err := wire.ReadExact(r, int(d.HeaderLen))
			if err != nil {
				return errors.Wrap(err, "read filename")
			}
			if utf8.Valid(raw) {
				filename = string(raw)
			}
		}

		content, err := materialize(r, store, d.ContentLen)
		if err != nil {
			return errors.Wrap(err, "materialize content")
		}

		h, err := header.Encode(header.Header{
			Timestamp: time.Now().UTC(),
			From:      username,
			Filename:  filename,
		})
		if err != nil {
			return errors.Wrap(err, "encode header")
		}

		b.Publish(&broker.ServerMessage{
			Descriptor: wire.Descriptor{Kind: d.Kind, HeaderLen: uint16(len(h)), ContentLen: d.ContentLen},
			Header:     h,
			Content:    content,
		})
	}
}

// materialize implements §4.2 step 4: small content is read fully into
// memory, large content is streamed to a fresh spill file.
func materialize(r *bufio.Reader, store *spill.Store, contentLen uint64) (broker.Content, error) {
	if contentLen <= wire.BufSize {
		buf, err := wire.ReadExact(r, int(contentLen))
		if err != nil {
			return broker.Content{}, err
		}
		return broker.InMemory(buf), nil
	}

	f, id, err := store.Create()
	if err != nil {
		return broker.Content{}, err
	}
	n, copyErr := io.CopyBuffer(f, io.LimitReader(r, int64(contentLen)), make([]byte, wire.BufSize))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		store.Remove(id)
		return broker.Content{}, errors.Wrap(copyErr, "spill content")
	case closeErr != nil:
		store.Remove(id)
		return broker.Content{}, errors.Wrap(closeErr, "close spill file")
	case uint64(n) != contentLen:
		store.Remove(id)
		return broker.Content{}, errors.Wrap(io.ErrUnexpectedEOF, "spill content")
	}
	return broker.Spilled(spill.NewHandle(store, id)), nil
}

// egress writes every broadcast addressed to this connection until ch
// closes (broker removed the registry entry) or a write fails (§4.5). It
// releases each message's Content after writing it, win or lose.
func egress(ctx context.Context, w *bufio.Writer, ch <-chan *broker.ServerMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			err := writeOne(w, msg)
			if relErr := msg.Content.Release(); relErr != nil && err == nil {
				err = relErr
			}
			if err != nil {
				return errors.Wrap(err, "write broadcast")
			}
		}
	}
}

func writeOne(w *bufio.Writer, msg *broker.ServerMessage) error {
	if err := wire.WriteDescriptor(w, msg.Descriptor); err != nil {
		return err
	}
	if len(msg.Header) > 0 {
		if _, err := w.Write(msg.Header); err != nil {
			return errors.Wrap(err, "write header")
		}
	}
	if err := msg.Content.WriteTo(w, wire.BufSize); err != nil {
		return errors.Wrap(err, "write content")
	}
	return w.Flush()
}
