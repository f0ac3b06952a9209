// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command chatcli is the minimal non-interactive driver for the client core
// (§4.6, §6.4). The terminal UI (input capture, rendering, scrolling) is
// explicitly out of scope (§1); this binary satisfies the same contract with
// a line-oriented stdin/stdout loop instead.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"code.hybscloud.com/chatframe/client"
	"code.hybscloud.com/chatframe/wire"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// fileCommand matches a line of the form "/file <path>", mirroring the
// original TUI's send-text-vs-send-file dispatch (§1 Out of scope notes
// this parsing is a UI collaborator concern, not core).
var fileCommand = regexp.MustCompile(`^/file\s+(\S.*)$`)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var address, username, saveDir, logLevel string

	cmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Simple TCP chat room client",
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log := logrus.New()
			log.SetLevel(lvl)
			return run(cmd.Context(), logrus.NewEntry(log), address, username, saveDir)
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "127.0.0.1:8080", "server address")
	cmd.Flags().StringVarP(&username, "username", "u", "", "username to log in with")
	cmd.Flags().StringVarP(&saveDir, "save-directory", "s", ".", "directory received files are saved to")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "logging level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func run(ctx context.Context, log *logrus.Entry, address, username, saveDir string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(ctx, username, address, saveDir)
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Printf("connected to %s as %s\n", address, username)

	go printIncoming(ctx, c, log)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := scanner.Text()
		if m := fileCommand.FindStringSubmatch(line); m != nil {
			if err := c.SendFile(strings.TrimSpace(m[1])); err != nil {
				log.WithError(err).Warn("send file failed")
			}
			continue
		}
		if err := c.SendText(line); err != nil {
			log.WithError(err).Warn("send text failed")
		}
	}
	return scanner.Err()
}

func printIncoming(ctx context.Context, c *client.Client, log *logrus.Entry) {
	for {
		msg, err := c.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Debug("receive loop ended")
			}
			return
		}
		printMessage(msg)
	}
}

func printMessage(msg client.ServerMessage) {
	ts := msg.Timestamp.Local().Format("15:04:05")
	switch msg.Kind {
	case wire.Login:
		fmt.Printf("<%s> %s joined the chat\n", ts, msg.From)
	case wire.Logout:
		fmt.Printf("<%s> %s left the chat\n", ts, msg.From)
	case wire.File:
		fmt.Printf("<%s> [%s] sent file: %s\n", ts, msg.From, msg.Filename)
	default:
		fmt.Printf("<%s> [%s]: %s\n", ts, msg.From, string(msg.Content))
	}
}
