// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package broker implements the chat service's single-owner registry and
// fan-out state machine (§4.3). A Broker is a single goroutine's worth of
// state: the registry map is never touched outside Run's event loop, so no
// lock guards it.
package broker

import (
	"context"
	"time"

	"code.hybscloud.com/chatframe/header"
	"code.hybscloud.com/chatframe/wire"
	"github.com/sirupsen/logrus"
)

// EgressQueueCap is the bounded capacity of each subscriber's egress channel
// (§4.5, §5 Backpressure).
const EgressQueueCap = 128

// ServerMessage is the broker-internal broadcast unit (§3). Content is
// shared by reference across every subscriber of one broadcast.
type ServerMessage struct {
	Descriptor wire.Descriptor
	Header     []byte
	Content    Content
}

type joinRequest struct {
	username string
	egress   chan *ServerMessage
	resp     chan wire.MessageKind
}

type logoutRequest struct {
	username string
}

type publishRequest struct {
	msg *ServerMessage
}

type lenRequest struct {
	resp chan int
}

// Broker owns the username → egress-channel registry and serializes
// Join/Logout/Message over one inbound channel (§4.3).
type Broker struct {
	log      *logrus.Entry
	inbox    chan any
	registry map[string]chan *ServerMessage
}

// New returns a Broker ready to Run. log may be nil, in which case the
// standard logger is used.
func New(log *logrus.Entry) *Broker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Broker{
		log:      log.WithField("component", "broker"),
		inbox:    make(chan any, EgressQueueCap),
		registry: make(map[string]chan *ServerMessage),
	}
}

// Run drives the broker's event loop until ctx is done. It is the only
// goroutine that ever reads or writes the registry.
func (b *Broker) Run(ctx context.Context) {
	b.log.Info("broker started")
	defer b.log.Info("broker stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-b.inbox:
			switch req := raw.(type) {
			case joinRequest:
				b.handleJoin(req)
			case logoutRequest:
				b.handleLogout(req)
			case publishRequest:
				b.handlePublish(req)
			case lenRequest:
				b.handleLen(req)
			}
		}
	}
}

// Join registers username and returns the broker's reply kind (Login on
// success, UsernameExists if already taken) along with a receive-only
// channel the caller's egress task should drain (nil when the username is
// taken). The egress channel itself
// is created here, by the caller's request, and handed to the broker so it
// can push broadcasts onto it (§4.3: "Join(username, respond,
// egress_sender)").
func (b *Broker) Join(ctx context.Context, username string) (wire.MessageKind, <-chan *ServerMessage, error) {
	egress := make(chan *ServerMessage, EgressQueueCap)
	resp := make(chan wire.MessageKind, 1)
	req := joinRequest{username: username, egress: egress, resp: resp}

	select {
	case b.inbox <- req:
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
	select {
	case kind := <-resp:
		if kind != wire.Login {
			return kind, nil, nil
		}
		return kind, egress, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Logout removes username from the registry and broadcasts a Logout message
// to every remaining subscriber. It returns once the request is queued on
// the broker's inbox; the broker handles it in order with earlier requests.
func (b *Broker) Logout(username string) {
	b.inbox <- logoutRequest{username: username}
}

// Publish submits a Message event for fan-out to every registered
// subscriber (§4.3).
func (b *Broker) Publish(msg *ServerMessage) {
	b.inbox <- publishRequest{msg: msg}
}

func (b *Broker) handleJoin(req joinRequest) {
	if _, exists := b.registry[req.username]; exists {
		req.resp <- wire.UsernameExists
		return
	}
	b.registry[req.username] = req.egress
	req.resp <- wire.Login

	// The original implementation re-enqueues this synthesized Message onto
	// its own inbound channel before replying to the caller. Doing that
	// literally here risks a self-deadlock if the inbox is ever saturated
	// (this goroutine is both the only producer making room and the blocked
	// sender). Broadcasting directly is observably equivalent for every
	// subscriber: nothing else can run between accepting this Join and
	// broadcasting its Login event, since the registry is single-owner.
	b.broadcastLifecycle(wire.Login, req.username)
}

func (b *Broker) handleLogout(req logoutRequest) {
	ch, ok := b.registry[req.username]
	if !ok {
		return
	}
	delete(b.registry, req.username)
	close(ch)
	b.broadcastLifecycle(wire.Logout, req.username)
}

func (b *Broker) broadcastLifecycle(kind wire.MessageKind, username string) {
	h, err := header.Encode(header.Header{Timestamp: time.Now().UTC(), From: username})
	if err != nil {
		b.log.WithError(err).WithField("username", username).Error("encode lifecycle header")
		return
	}
	b.broadcast(&ServerMessage{
		Descriptor: wire.Descriptor{Kind: kind, HeaderLen: uint16(len(h))},
		Header:     h,
		Content:    Empty(),
	})
}

func (b *Broker) handlePublish(req publishRequest) {
	b.broadcast(req.msg)
}

// broadcast fans msg out to every registered subscriber without blocking:
// a subscriber whose egress queue is full is skipped, not unregistered
// (§4.3, and §9 Open Question: drop rather than await on overflow, since §5
// states the broker must never stall).
func (b *Broker) broadcast(msg *ServerMessage) {
	for username, ch := range b.registry {
		clone := &ServerMessage{Descriptor: msg.Descriptor, Header: msg.Header, Content: msg.Content.Clone()}
		select {
		case ch <- clone:
		default:
			b.log.WithField("to", username).Warn("egress queue full, dropping message")
			if err := clone.Content.Release(); err != nil {
				b.log.WithError(err).Warn("release dropped message content")
			}
		}
	}
	// The broker's own reference (msg.Content) is now redundant: every
	// delivered subscriber holds its own clone. Releasing it here is what
	// makes reference-counted spill cleanup converge to zero references
	// (and immediate deletion) when nobody was subscribed to receive it.
	if err := msg.Content.Release(); err != nil {
		b.log.WithError(err).Warn("release published message content")
	}
}

func (b *Broker) handleLen(req lenRequest) {
	req.resp <- len(b.registry)
}

// Len reports the number of registered usernames. Intended for tests and
// diagnostics; not part of the event-driven API.
func (b *Broker) Len(ctx context.Context) (int, error) {
	resp := make(chan int, 1)
	select {
	case b.inbox <- lenRequest{resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-resp:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
