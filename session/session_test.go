// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"code.hybscloud.com/chatframe/broker"
	"code.hybscloud.com/chatframe/spill"
	"code.hybscloud.com/chatframe/wire"
	"gotest.tools/v3/assert"
)

func startServed(t *testing.T, b *broker.Broker) net.Conn {
	t.Helper()
	return startServedWithStore(t, b, spill.New(t.TempDir()))
}

func startServedWithStore(t *testing.T, b *broker.Broker, store *spill.Store) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), server, b, store, nil) }()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return client
}

func readDescriptor(t *testing.T, conn net.Conn) wire.Descriptor {
	t.Helper()
	d, err := wire.ReadDescriptor(conn)
	assert.NilError(t, err)
	return d
}

// readFrame reads a full descriptor+header+content frame, draining it
// entirely so the wire stays aligned for the next frame.
func readFrame(t *testing.T, conn net.Conn) (wire.Descriptor, []byte, []byte) {
	t.Helper()
	d := readDescriptor(t, conn)
	h, err := wire.ReadExact(conn, int(d.HeaderLen))
	assert.NilError(t, err)
	c, err := wire.ReadExact(conn, int(d.ContentLen))
	assert.NilError(t, err)
	return d, h, c
}

func writeLogin(t *testing.T, conn net.Conn, username string) {
	t.Helper()
	err := wire.WriteFrame(conn, wire.Descriptor{Kind: wire.Login, HeaderLen: uint16(len(username))},
		[]byte(username), wire.EmptySource())
	assert.NilError(t, err)
}

func TestSessionLoginSuccess(t *testing.T) {
	b := broker.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	conn := startServed(t, b)
	writeLogin(t, conn, "alice")

	d := readDescriptor(t, conn)
	assert.Equal(t, d.Kind, wire.Login)
	assert.Equal(t, d.HeaderLen, uint16(0))
	assert.Equal(t, d.ContentLen, uint64(0))
}

func TestSessionDuplicateUsername(t *testing.T) {
	b := broker.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	first := startServed(t, b)
	writeLogin(t, first, "alice")
	readDescriptor(t, first) // login confirmation

	second := startServed(t, b)
	writeLogin(t, second, "alice")
	d := readDescriptor(t, second)
	assert.Equal(t, d.Kind, wire.UsernameExists)
}

func TestSessionTextFanOut(t *testing.T) {
	b := broker.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	alice := startServed(t, b)
	writeLogin(t, alice, "alice")
	readDescriptor(t, alice) // own login confirmation
	readFrame(t, alice)      // own login lifecycle broadcast

	bob := startServed(t, b)
	writeLogin(t, bob, "bob")
	readDescriptor(t, bob) // own login confirmation
	readFrame(t, bob)      // own login lifecycle broadcast

	// alice observes bob's join lifecycle broadcast
	d, _, _ := readFrame(t, alice)
	assert.Equal(t, d.Kind, wire.Login)

	err := wire.WriteFrame(alice, wire.Descriptor{Kind: wire.Utf8, ContentLen: 5}, nil, wire.BytesSource([]byte("hello")))
	assert.NilError(t, err)

	for _, conn := range []net.Conn{alice, bob} {
		d, h, content := readFrame(t, conn)
		assert.Equal(t, d.Kind, wire.Utf8)
		assert.Assert(t, len(h) > 0)
		assert.Equal(t, string(content), "hello")
	}
}

func TestSessionLogoutBroadcast(t *testing.T) {
	b := broker.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	alice := startServed(t, b)
	writeLogin(t, alice, "alice")
	readDescriptor(t, alice)
	readFrame(t, alice) // alice's own login broadcast

	bob := startServed(t, b)
	writeLogin(t, bob, "bob")
	readDescriptor(t, bob)
	readFrame(t, alice) // bob's join observed by alice

	assert.NilError(t, bob.Close())

	d, _, _ := readFrame(t, alice)
	assert.Equal(t, d.Kind, wire.Logout)

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := b.Len(context.Background())
		assert.NilError(t, err)
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("broker registry never converged back to 1")
		}
	}
}

// TestSessionLargeFileSpillsAndCleansUp exercises spec.md §8 scenario 5: a
// content_len beyond wire.BufSize spills to a temp file, every subscriber
// receives byte-identical content, and once both have finished reading, the
// spill file is gone.
func TestSessionLargeFileSpillsAndCleansUp(t *testing.T) {
	b := broker.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	storeDir := t.TempDir()
	store := spill.New(storeDir)

	alice := startServedWithStore(t, b, store)
	writeLogin(t, alice, "alice")
	readDescriptor(t, alice)
	readFrame(t, alice) // alice's own login broadcast

	bob := startServedWithStore(t, b, store)
	writeLogin(t, bob, "bob")
	readDescriptor(t, bob)
	readFrame(t, bob)   // bob's own login broadcast
	readFrame(t, alice) // bob's join observed by alice

	payload := make([]byte, 100*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	filename := "big.bin"
	d := wire.Descriptor{Kind: wire.File, HeaderLen: uint16(len(filename)), ContentLen: uint64(len(payload))}
	err := wire.WriteFrame(alice, d, []byte(filename), wire.BytesSource(payload))
	assert.NilError(t, err)

	for _, conn := range []net.Conn{alice, bob} {
		gotD, h, content := readFrame(t, conn)
		assert.Equal(t, gotD.Kind, wire.File)
		assert.Assert(t, len(h) > 0)
		assert.Equal(t, uint64(len(content)), uint64(len(payload)))
		assert.DeepEqual(t, content, payload)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := os.ReadDir(storeDir)
		assert.NilError(t, err)
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("spill file never cleaned up, remaining: %v", entries)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
