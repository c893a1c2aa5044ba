package logger

import (
	"context"
	"log"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge adapts slog records onto a zerolog logger so stdlib
// collaborators (net/http's internal error log in particular) emit the
// same JSON stream as the rest of the process. Context fields set via
// WithRequestID / WithSourceID / WithComponent are carried through.
type slogBridge struct {
	zl     *zerolog.Logger
	attrs  []slog.Attr
	prefix string
}

// NewSlog wraps zl in a *slog.Logger.
func NewSlog(zl *zerolog.Logger) *slog.Logger {
	return slog.New(&slogBridge{zl: zl})
}

// NewStdErrorLog builds a *log.Logger for http.Server.ErrorLog; every
// line it prints surfaces as a zerolog error event.
func NewStdErrorLog(zl *zerolog.Logger) *log.Logger {
	return slog.NewLogLogger(NewSlog(zl).Handler(), slog.LevelError)
}

func (h *slogBridge) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *slogBridge) Handle(ctx context.Context, r slog.Record) error {
	ev := h.event(FromContext(ctx, h.zl), r.Level)
	for _, a := range h.attrs {
		ev = addAttr(ev, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		a.Key = h.prefix + a.Key
		ev = addAttr(ev, a)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *slogBridge) event(base *zerolog.Logger, level slog.Level) *zerolog.Event {
	switch {
	case level <= slog.LevelDebug:
		return base.Debug()
	case level >= slog.LevelError:
		return base.Error()
	case level >= slog.LevelWarn:
		return base.Warn()
	default:
		return base.Info()
	}
}

// WithAttrs qualifies keys with the current group prefix immediately,
// so attrs bound before a later WithGroup keep their bare names.
func (h *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

// WithGroup qualifies subsequent keys with the group name, keeping the
// output flat the way zerolog expects.
func (h *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func addAttr(ev *zerolog.Event, a slog.Attr) *zerolog.Event {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		return ev.Str(a.Key, a.Value.String())
	case slog.KindInt64:
		return ev.Int64(a.Key, a.Value.Int64())
	case slog.KindFloat64:
		return ev.Float64(a.Key, a.Value.Float64())
	case slog.KindBool:
		return ev.Bool(a.Key, a.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(a.Key, a.Value.Duration())
	case slog.KindTime:
		return ev.Time(a.Key, a.Value.Time())
	default:
		return ev.Interface(a.Key, a.Value.Any())
	}
}
