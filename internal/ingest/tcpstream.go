package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
)

// StartTCPStream accepts connections carrying newline-delimited JSON frames.
// It returns the bound listener so callers can learn the port.
func StartTCPStream(ctx context.Context, addr string, parser *Parser, sink *Sink, logger *slog.Logger) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", ln.Addr().String())
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleTCPStreamConn(ctx, conn, parser, sink, logger)
		}
	}()
	return ln, nil
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, parser *Parser, sink *Sink, logger *slog.Logger) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		frame, err := parser.ParseLine(scanner.Text())
		if err != nil {
			if logger != nil {
				logger.Warn("tcp stream parse error", "err", err, "remote", conn.RemoteAddr().String())
			}
			continue
		}
		if frame == nil {
			continue
		}
		frame.Source = "tcp_stream"
		sink.Send(ctx, *frame)
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && logger != nil {
		logger.Warn("tcp stream scanner error", "err", err)
	}
}
