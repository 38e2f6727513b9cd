package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	ossignal "os/signal"
	"time"

	"github.com/spf13/cobra"

	platform "github.com/umhmon/umh/internal/platform/windows"
	"github.com/umhmon/umh/internal/signal"
)

const (
	maxMessageSize = 4096
	readTimeout    = 5 * time.Second
)

func newListenCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "listen PIPE",
		Short: "Serve the controller pipe and print the messages monitors send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFor(cmd)
			if err != nil {
				return err
			}
			name := platform.PipePath(args[0])
			ln, err := platform.ListenNamedPipe(name)
			if err != nil {
				return fmt.Errorf("listen %s: %w", name, err)
			}
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			logger.Info("listening", "pipe", name)
			return serveMessages(ctx, ln, cmd.OutOrStdout(), logger, count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many valid messages (0 = until interrupted)")
	return cmd
}

// serveMessages accepts one message per connection and prints it until ctx
// ends or limit valid messages were seen. The listener is closed on return.
func serveMessages(ctx context.Context, ln net.Listener, w io.Writer, logger *slog.Logger, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	seen := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		raw, err := readMessage(conn)
		if err != nil {
			logger.Warn("read message", "error", err)
			continue
		}
		m, err := signal.ParseMessage(raw)
		if err != nil {
			logger.Warn("unrecognized message", "raw", raw)
			continue
		}
		if _, err := fmt.Fprintln(w, formatMessage(m)); err != nil {
			return err
		}
		seen++
		if limit > 0 && seen >= limit {
			return nil
		}
	}
}

func readMessage(conn net.Conn) (string, error) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	b, err := io.ReadAll(io.LimitReader(conn, maxMessageSize))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatMessage(m signal.Message) string {
	switch m.Kind {
	case signal.KindLoaded:
		return fmt.Sprintf("LOADED pid=%d", m.PID)
	case signal.KindProcess:
		return fmt.Sprintf("PROCESS pid=%d tid=%d", m.PID, m.TID)
	case signal.KindCategory:
		return fmt.Sprintf("CATEGORY %s", m.Category)
	}
	return m.Raw
}
