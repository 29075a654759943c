// Package logutil 每次运行在日志目录下写一个 JSON 日志文件，可同时输出到终端
package logutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

type Options struct {
	Dir     string    // 日志目录
	RunID   string    // 为空时生成新的 uuid
	Console io.Writer // 非空时同时以文本格式输出
	Level   slog.Level
}

type Sink struct {
	*slog.Logger

	RunID string
	Path  string
	file  afero.File
}

func NewRunID() string {
	return uuid.NewString()
}

// Open 创建 <dir>/<run-id>.log
func Open(fs afero.Fs, opts Options) (*Sink, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	if opts.Dir == "" {
		opts.Dir = "logs"
	}

	if err := fs.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	path := filepath.Join(opts.Dir, opts.RunID+".log")
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("创建日志文件失败: %w", err)
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler = slog.NewJSONHandler(f, handlerOpts)
	if opts.Console != nil {
		h = teeHandler{h, slog.NewTextHandler(opts.Console, handlerOpts)}
	}

	return &Sink{
		Logger: slog.New(h).With("run_id", opts.RunID),
		RunID:  opts.RunID,
		Path:   path,
		file:   f,
	}, nil
}

func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Sync()
	if cerr := s.file.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	s.file = nil
	return err
}

func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// teeHandler 将记录同时交给两个 handler
type teeHandler [2]slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t[0].Enabled(ctx, level) || t[1].Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t[0].WithAttrs(attrs), t[1].WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t[0].WithGroup(name), t[1].WithGroup(name)}
}
