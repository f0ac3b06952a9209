// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package client implements the minimum contract a UI collaborator needs to
// drive one chat session (§4.6, §6.4): a login handshake on construction, an
// outbound multiplexer that serializes text/file sends onto the socket, and
// an inbound demultiplexer that decodes broadcast frames into a receive
// queue.
package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"code.hybscloud.com/chatframe/header"
	"code.hybscloud.com/chatframe/wire"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// QueueCap bounds the outbound command queue and inbound receive queue
// (mirrors the broker's per-connection queue capacity, §5).
const QueueCap = 128

// ErrBadLogin is returned by New when the server rejects the username.
var ErrBadLogin = errors.New("client: login rejected")

// ServerMessage is a decoded broadcast frame handed back by Recv (§6.4).
type ServerMessage struct {
	Kind      wire.MessageKind
	Timestamp time.Time
	From      string
	Filename  string
	Content   []byte
}

type sendText struct{ text string }
type sendFile struct{ path string }

// Client drives one TCP session: a confirmed username, an outbound command
// queue drained by a single writer goroutine, and an inbound receive queue
// fed by a single reader goroutine.
type Client struct {
	conn     net.Conn
	saveDir  string
	username string

	outbox chan any
	inbox  chan ServerMessage

	grp    *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New dials address, performs the login handshake (§4.4 client side), and
// starts the outbound/inbound background goroutines. It returns
// ErrBadLogin if the server rejects username.
func New(ctx context.Context, username, address, saveDir string) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "client: dial")
	}

	r := bufio.NewReaderSize(conn, wire.BufSize)
	w := bufio.NewWriterSize(conn, wire.BufSize)

	if err := login(r, w, username); err != nil {
		conn.Close()
		return nil, err
	}

	gctx, cancel := context.WithCancel(ctx)
	c := &Client{
		conn:     conn,
		saveDir:  saveDir,
		username: username,
		outbox:   make(chan any, QueueCap),
		inbox:    make(chan ServerMessage, QueueCap),
		cancel:   cancel,
	}

	grp, gctx := errgroup.WithContext(gctx)
	c.grp = grp
	c.ctx = gctx
	grp.Go(func() error { return c.outboundLoop(gctx, w) })
	grp.Go(func() error { return c.inboundLoop(gctx, r) })

	return c, nil
}

func login(r *bufio.Reader, w *bufio.Writer, username string) error {
	err := wire.WriteFrame(w, wire.Descriptor{Kind: wire.Login, HeaderLen: uint16(len(username))},
		[]byte(username), wire.EmptySource())
	if err != nil {
		return errors.Wrap(err, "client: send login")
	}
	d, err := wire.ReadDescriptor(r)
	if err != nil {
		return errors.Wrap(err, "client: read login reply")
	}
	if d.Kind != wire.Login {
		return ErrBadLogin
	}
	return nil
}

// SendText enqueues a text message for the outbound multiplexer.
func (c *Client) SendText(text string) error {
	select {
	case c.outbox <- sendText{text: text}:
		return nil
	case <-c.doneCh():
		return c.grp.Wait()
	}
}

// SendFile enqueues a file send for the outbound multiplexer. path must
// name a readable file; its base name is sent as the wire filename.
func (c *Client) SendFile(path string) error {
	select {
	case c.outbox <- sendFile{path: path}:
		return nil
	case <-c.doneCh():
		return c.grp.Wait()
	}
}

// Recv blocks for the next decoded broadcast, or returns ctx.Err() /
// the session's terminal error once the inbound goroutine has ended.
func (c *Client) Recv(ctx context.Context) (ServerMessage, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-ctx.Done():
		return ServerMessage{}, ctx.Err()
	case <-c.doneCh():
		return ServerMessage{}, c.grp.Wait()
	}
}

// Close ends the session's background goroutines and closes the socket.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close()
	c.grp.Wait()
	return err
}

// doneCh unblocks Send/Recv once either background goroutine has ended
// (error or Close), mirroring errgroup's own cancellation signal.
func (c *Client) doneCh() <-chan struct{} {
	return c.ctx.Done()
}

// outboundLoop serializes queued sends onto w until ctx is canceled (§4.6
// outbound multiplexer).
func (c *Client) outboundLoop(ctx context.Context, w *bufio.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.outbox:
			if err := c.writeCommand(w, cmd); err != nil {
				return err
			}
		}
	}
}

func (c *Client) writeCommand(w *bufio.Writer, cmd any) error {
	switch v := cmd.(type) {
	case sendText:
		err := wire.WriteFrame(w, wire.Descriptor{Kind: wire.Utf8, ContentLen: uint64(len(v.text))},
			nil, wire.BytesSource([]byte(v.text)))
		return errors.Wrap(err, "client: send text")
	case sendFile:
		return c.writeFile(w, v.path)
	default:
		return nil
	}
}

func (c *Client) writeFile(w *bufio.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "client: open file")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "client: stat file")
	}
	filename := filepath.Base(path)
	d := wire.Descriptor{Kind: wire.File, HeaderLen: uint16(len(filename)), ContentLen: uint64(info.Size())}
	err = wire.WriteFrame(w, d, []byte(filename), wire.StreamSource(f, info.Size()))
	return errors.Wrap(err, "client: send file")
}

// inboundLoop decodes broadcast frames and enqueues ServerMessages until
// ctx is canceled or the connection ends (§4.6 inbound demultiplexer).
func (c *Client) inboundLoop(ctx context.Context, r *bufio.Reader) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d, err := wire.ReadDescriptor(r)
		if err != nil {
			if err == io.EOF {
				// Returned as an error so the group context is canceled
				// and Send/Recv unblock.
				return io.EOF
			}
			return errors.Wrap(err, "client: read descriptor")
		}

		h, err := wire.ReadExact(r, int(d.HeaderLen))
		if err != nil {
			return errors.Wrap(err, "client: read header")
		}
		content, err := wire.ReadExact(r, int(d.ContentLen))
		if err != nil {
			return errors.Wrap(err, "client: read content")
		}

		hdr, err := header.Decode(h)
		if err != nil {
			return errors.Wrap(err, "client: decode header")
		}

		msg := ServerMessage{
			Kind:      d.Kind,
			Timestamp: hdr.Timestamp,
			From:      hdr.From,
			Filename:  hdr.Filename,
			Content:   content,
		}
		if msg.Kind == wire.File {
			if err := c.saveFile(msg); err != nil {
				return errors.Wrap(err, "client: save file")
			}
		}

		select {
		case c.inbox <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// saveFile implements §4.6's file save policy: write content into
// save_dir/filename, creating the file if missing and overwriting it if
// present.
func (c *Client) saveFile(msg ServerMessage) error {
	if c.saveDir == "" || msg.Filename == "" {
		return nil
	}
	path := filepath.Join(c.saveDir, msg.Filename)
	return os.WriteFile(path, msg.Content, 0o644)
}
