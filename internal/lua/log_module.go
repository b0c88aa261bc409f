package lua

import (
	"context"
	"log/slog"

	lua "github.com/yuin/gopher-lua"
)

// LogModule forwards script log calls to slog: log.info(msg, {key = value}).
type LogModule struct {
	logger *slog.Logger
}

func NewLogModule(logger *slog.Logger) *LogModule {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogModule{logger: logger}
}

func (l *LogModule) Name() string {
	return "log"
}

func (l *LogModule) Loader(L *lua.LState) int {
	L.Push(L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"debug": l.at(slog.LevelDebug),
		"info":  l.at(slog.LevelInfo),
		"warn":  l.at(slog.LevelWarn),
		"error": l.at(slog.LevelError),
	}))
	return 1
}

func (l *LogModule) at(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		var attrs []any
		if t, ok := L.Get(2).(*lua.LTable); ok {
			t.ForEach(func(k, v lua.LValue) {
				attrs = append(attrs, k.String(), ToGoValue(v))
			})
		}
		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		l.logger.Log(ctx, level, msg, attrs...)
		return 0
	}
}
