// Package logger はslogによる構造化ログの初期化を提供する。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options はロガーの出力形式を指定する。
type Options struct {
	Level string // debug, info, warn, error
	JSON  bool   // falseの場合はテキスト形式
	File  string // 空でなければ標準出力に加えてファイルにも出力する
}

// DefaultOptions はINFOレベルのJSON出力を返す。
func DefaultOptions() Options {
	return Options{Level: "info", JSON: true}
}

// Setup は指定されたwriterに出力するslog.Loggerを生成して返す。
func Setup(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, DefaultOptions()))
}

// Configure は設定に従ってグローバルロガーを再構成する。
// ログファイルを開いた場合は呼び出し側でCloseすること。ファイル未指定時はnilのCloserを返す。
func Configure(w io.Writer, opts Options) (io.Closer, error) {
	if w == nil {
		w = os.Stdout
	}

	var closer io.Closer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closer = f
	}

	slog.SetDefault(Setup(w, opts))
	return closer, nil
}

// ParseLevel はレベル文字列をslog.Levelに変換する。未知の値はINFOとして扱う。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
