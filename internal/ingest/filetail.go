package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// StartFileTail follows JSONL recordings of frames, one goroutine per file.
func StartFileTail(ctx context.Context, files []string, startAtEnd bool, parser *Parser, sink *Sink, logger *slog.Logger) {
	for _, path := range files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", startAtEnd)
		}
		go tailFile(ctx, path, startAtEnd, parser, sink, logger)
	}
}

func tailFile(ctx context.Context, path string, startAtEnd bool, parser *Parser, sink *Sink, logger *slog.Logger) {
	var file *os.File
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
			if startAtEnd {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
			}
		}

		reader := bufio.NewReader(file)
		var partial string
		for {
			chunk, err := reader.ReadString('\n')
			if err == io.EOF {
				// keep an unterminated line until the writer finishes it
				partial += chunk
				if !BackoffSleep(ctx, 200*time.Millisecond) {
					_ = file.Close()
					return
				}
				if info, statErr := os.Stat(path); statErr == nil && info.Size() < offset {
					_ = file.Close()
					file = nil
					break
				}
				continue
			}
			if err != nil {
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			line := partial + chunk
			partial = ""
			offset += int64(len(line))
			frame, err := parser.ParseLine(line)
			if err != nil {
				if logger != nil {
					logger.Warn("tail parse error", "path", path, "err", err)
				}
				continue
			}
			if frame == nil {
				continue
			}
			frame.Source = "file_tail"
			sink.Send(ctx, *frame)
		}
	}
}
