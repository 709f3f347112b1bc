// Copyright 2019 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/holiman/uint256"
	"github.com/mattn/go-isatty"
)

var (
	levelToBracket = map[slog.Level]string{
		LevelTrace: "TRACE",
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO ",
		LevelWarn:  "WARN ",
		LevelError: "ERROR",
		LevelCrit:  "CRIT ",
	}
	levelToColor = map[slog.Level]*color.Color{
		LevelTrace: color.New(color.FgHiBlack),
		LevelDebug: color.New(color.FgWhite),
		LevelInfo:  color.New(color.FgGreen),
		LevelWarn:  color.New(color.FgYellow),
		LevelError: color.New(color.FgRed),
		LevelCrit:  color.New(color.FgMagenta, color.Bold),
	}
)

// UseColor reports whether wr is a terminal that can render ANSI color
// codes. cmd/replica and cmd/client do not call it: both pass useColor=true
// to NewTerminalHandlerWithLevel.
func UseColor(wr io.Writer) bool {
	f, ok := wr.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// terminalHandler formats records in a human-readable, column-aligned form
// suitable for a tty; cmd/replica logs through it whether or not stderr is
// a terminal.
type terminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	level    slog.Leveler
	useColor bool
	attrs    []slog.Attr
}

// NewTerminalHandler returns a slog.Handler using LevelInfo as its minimum
// enabled level.
func NewTerminalHandler(wr io.Writer, useColor bool) slog.Handler {
	return NewTerminalHandlerWithLevel(wr, LevelInfo, useColor)
}

// NewTerminalHandlerWithLevel returns a handler with the given minimum level.
func NewTerminalHandlerWithLevel(wr io.Writer, level slog.Leveler, useColor bool) slog.Handler {
	return &terminalHandler{
		wr:       wr,
		level:    level,
		useColor: useColor,
	}
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &terminalHandler{
		wr:       h.wr,
		level:    h.level,
		useColor: h.useColor,
	}
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return nh
}

func (h *terminalHandler) WithGroup(name string) slog.Handler {
	// Groups are not used by the replica's log call sites; treat as a no-op
	// rather than silently dropping attrs.
	return h
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	buf := new(bytes.Buffer)

	lvl := levelToBracket[r.Level]
	if lvl == "" {
		lvl = r.Level.String()
	}
	if h.useColor {
		if c, ok := levelToColor[r.Level]; ok {
			lvl = c.Sprint(lvl)
		}
	}
	buf.WriteString(lvl)
	buf.WriteString(" [")
	writeTimeTermFormat(buf, r.Time)
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	// Pad the message out to a fixed column so attrs line up.
	if pad := termMsgJust - len(r.Message); pad > 0 {
		buf.WriteString(strings.Repeat(" ", pad))
	}

	all := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	all = append(all, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		all = append(all, a)
		return true
	})
	for _, a := range all {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		buf.WriteString(formatLogfmtValue(a.Value.Any(), h.useColor))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.wr.Write(buf.Bytes())
	return err
}

// formatLogfmtValue formats a value for serialization, using the conventions
// the replica's logged types need: big.Int/uint256.Int get thousands
// separators, byte slices are hex, everything else falls back to fmt.
func formatLogfmtValue(value interface{}, term bool) string {
	if value == nil {
		return "<nil>"
	}
	switch v := value.(type) {
	case time.Time:
		return v.Format(timeFormat)
	case *big.Int:
		if v == nil {
			return "<nil>"
		}
		return formatLogfmtBigInt(v)
	case *uint256.Int:
		if v == nil {
			return "<nil>"
		}
		return FormatLogfmtUint256(v)
	case error:
		return quoteIfNeeded(v.Error())
	case fmt.Stringer:
		return quoteIfNeeded(v.String())
	case string:
		return quoteIfNeeded(v)
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), floatFormat, 3, 64)
	case float64:
		return strconv.FormatFloat(v, floatFormat, 3, 64)
	case int8, int16, int32, int64, int:
		return FormatLogfmtInt64(reflect.ValueOf(v).Int())
	case uint8, uint16, uint32, uint64, uint:
		return FormatLogfmtUint64(reflect.ValueOf(v).Uint())
	case []byte:
		return quoteIfNeeded(fmt.Sprintf("%v", v))
	default:
		return quoteIfNeeded(fmt.Sprintf("%+v", v))
	}
}

func quoteIfNeeded(s string) string {
	needsQuotes := false
	for _, r := range s {
		if r <= ' ' || r == '"' || r == '=' || r > '~' {
			needsQuotes = true
			break
		}
	}
	if !needsQuotes && s != "" {
		return s
	}
	return strconv.Quote(s)
}

// JSONHandler returns a handler that writes JSON-formatted records at every
// level, suitable for piping into log aggregation (§6 ambient stack).
func JSONHandler(wr io.Writer) slog.Handler {
	return JSONHandlerWithLevel(wr, LevelTrace)
}

// JSONHandlerWithLevel returns a JSON handler with the given minimum level.
func JSONHandlerWithLevel(wr io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{
		ReplaceAttr: builtinReplaceJSON,
		Level:       level,
	})
}

// LogfmtHandler returns a handler using logfmt encoding at LevelTrace.
func LogfmtHandler(wr io.Writer) slog.Handler {
	return slog.NewTextHandler(wr, &slog.HandlerOptions{
		ReplaceAttr: builtinReplaceJSON,
		Level:       LevelTrace,
	})
}

func builtinReplaceJSON(groups []string, a slog.Attr) slog.Attr {
	switch v := a.Value.Any().(type) {
	case *big.Int:
		if v == nil {
			a.Value = slog.StringValue("<nil>")
		} else {
			a.Value = slog.StringValue(v.String())
		}
	case *uint256.Int:
		if v == nil {
			a.Value = slog.StringValue("<nil>")
		} else {
			a.Value = slog.StringValue(v.Dec())
		}
	case error:
		a.Value = slog.StringValue(v.Error())
	}
	return a
}

const timeFormat = "2006-01-02T15:04:05-0700"

// FormatLogfmtUint256 formats a uint256.Int with thousands separators.
func FormatLogfmtUint256(v *uint256.Int) string {
	return formatLogfmtBigInt(v.ToBig())
}

// --- glog-style dynamic verbosity, ported from go-ethereum's GlogHandler ---

type pattern struct {
	file  string
	level slog.Level
}

// GlogHandler allows verbosity to be raised or lowered per source file at
// runtime through Vmodule. No command in this module exposes it as a flag.
type GlogHandler struct {
	origin slog.Handler

	mu        sync.RWMutex
	verbosity slog.Level
	override  bool
	patterns  []pattern
}

// NewGlogHandler wraps h with dynamic, per-file verbosity control.
func NewGlogHandler(h slog.Handler) *GlogHandler {
	return &GlogHandler{origin: h}
}

// Verbosity sets the global logging threshold.
func (g *GlogHandler) Verbosity(level slog.Level) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verbosity = level
}

// Vmodule sets the glog verbosity pattern, a comma-separated list of
// "file=level" pairs where level follows glog's V(n) convention: each step
// of n shifts four slog levels, so V=5 reaches down to LevelTrace.
func (g *GlogHandler) Vmodule(ruleset string) error {
	var filter []pattern
	for _, rule := range strings.Split(ruleset, ",") {
		if rule == "" {
			continue
		}
		parts := strings.Split(rule, "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("invalid pattern %q", rule)
		}
		v, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid verbosity %q: %v", parts[1], err)
		}
		filter = append(filter, pattern{file: parts[0], level: vmoduleLevel(v)})
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.patterns = filter
	g.override = len(filter) > 0
	return nil
}

func vmoduleLevel(v int) slog.Level {
	return LevelCrit - slog.Level(v)*4
}

func (g *GlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if level >= g.verbosity {
		return true
	}
	return g.override
}

func (g *GlogHandler) Handle(ctx context.Context, r slog.Record) error {
	g.mu.RLock()
	verbosity := g.verbosity
	patterns := g.patterns
	g.mu.RUnlock()

	if r.Level >= verbosity {
		return g.origin.Handle(ctx, r)
	}
	if len(patterns) == 0 {
		return nil
	}
	file := callerFileFromPC(r.PC)
	for _, p := range patterns {
		if matchFile(p.file, file) && r.Level >= p.level {
			return g.origin.Handle(ctx, r)
		}
	}
	return nil
}

func (g *GlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &GlogHandler{origin: g.origin.WithAttrs(attrs), verbosity: g.verbosity, override: g.override, patterns: g.patterns}
}

func (g *GlogHandler) WithGroup(name string) slog.Handler {
	return &GlogHandler{origin: g.origin.WithGroup(name), verbosity: g.verbosity, override: g.override, patterns: g.patterns}
}

func matchFile(pattern, file string) bool {
	base := file
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		base = file[idx+1:]
	}
	return pattern == base || pattern == file
}

func callerFileFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return frame.File
}
