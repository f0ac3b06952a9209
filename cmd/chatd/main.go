// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command chatd runs the chat broker's TCP listener (§6.3, §6.5).
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"code.hybscloud.com/chatframe/broker"
	"code.hybscloud.com/chatframe/session"
	"code.hybscloud.com/chatframe/spill"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var address, logLevel string

	cmd := &cobra.Command{
		Use:   "chatd",
		Short: "Simple TCP chat room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			return run(cmd.Context(), address, log)
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "127.0.0.1:8080", "address to bind the server to")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "logging level (debug, info, warn, error)")
	return cmd
}

func newLogger(level string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(lvl)
	return logrus.NewEntry(log), nil
}

func run(ctx context.Context, address string, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.WithField("address", address).Info("chatd listening")

	b := broker.New(log)
	go b.Run(ctx)
	store := spill.New("")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info("chatd shutting down")
				return nil
			default:
				return err
			}
		}
		go func() {
			if err := session.Serve(ctx, conn, b, store, log); err != nil {
				log.WithError(err).Debug("session ended with error")
			}
		}()
	}
}
