package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

// Sublogger derives a child logger. The child starts at the parent's level and is registered so
// that pattern configs can later address it by its dotted name.
func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	child := &impl{
		name:      newName,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
	return globalLoggerRegistry.getOrRegister(newName, child)
}

func (imp *impl) Sync() error {
	var errs []error
	for _, appender := range imp.appenders {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}

	return multierr.Combine(errs...)
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	// When downconverting to a SugaredLogger, copy those that implement the `zapcore.Core`
	// interface. This includes the observed logs for tests.
	var copiedCores []zapcore.Core
	for _, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			copiedCores = append(copiedCores, core)
		}
	}

	config := NewZapLoggerConfig()
	// Use the global zap `AtomicLevel` such that the constructed zap logger can observe changes to
	// the debug flag.
	config.Level = GlobalLogLevel
	ret := zap.Must(config.Build()).Sugar().Named(imp.name)
	for _, core := range copiedCores {
		ret = ret.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}

	return ret
}

func (imp *impl) shouldLog(logLevel Level) bool {
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		return true
	}

	return logLevel >= imp.level.Get()
}

func (imp *impl) emit(logLevel Level, msg string, fields []zapcore.Field) {
	entry := zapcore.Entry{
		Level:      logLevel.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	imp.write(entry, fields)
}

func (imp *impl) write(entry zapcore.Entry, fields []zapcore.Field) {
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

// toFields turns `keysAndValues` into zap fields where the odd elements are the keys and their
// following even counterpart is the value. Values are json serialized, so only public fields of
// structs are included.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, len(keysAndValues)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		keyObj := keysAndValues[keyIdx]
		var keyStr string
		if stringer, ok := keyObj.(fmt.Stringer); ok {
			keyStr = stringer.String()
		} else {
			keyStr = fmt.Sprintf("%v", keyObj)
		}

		if keyIdx+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(keyStr, keysAndValues[keyIdx+1]))
		} else {
			// API mis-use. Rather than logging a logging mis-use, slip in an error message such
			// that we don't silently discard it.
			fields = append(fields, zap.Any(keyStr, errors.New("unpaired log key")))
		}
	}
	return fields
}

// The three shapes every level method forwards to. Each is a separate stack frame of identical
// depth, which `getCaller` relies on.

func (imp *impl) logArgs(enabled bool, logLevel Level, args []interface{}) {
	if enabled {
		imp.emit(logLevel, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) logTemplate(enabled bool, logLevel Level, template string, args []interface{}) {
	if enabled {
		imp.emit(logLevel, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) logFields(enabled bool, logLevel Level, msg string, keysAndValues []interface{}) {
	if enabled {
		imp.emit(logLevel, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Debug(args ...interface{}) {
	imp.logArgs(imp.shouldLog(DEBUG), DEBUG, args)
}

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) {
	imp.logArgs(imp.shouldLog(DEBUG) || IsDebugMode(ctx), DEBUG, args)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.logTemplate(imp.shouldLog(DEBUG), DEBUG, template, args)
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	imp.logTemplate(imp.shouldLog(DEBUG) || IsDebugMode(ctx), DEBUG, template, args)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.logFields(imp.shouldLog(DEBUG), DEBUG, msg, keysAndValues)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if tag := debugTag(ctx); tag != "" {
		keysAndValues = append(keysAndValues, "debug_tag", tag)
	}
	imp.logFields(imp.shouldLog(DEBUG) || IsDebugMode(ctx), DEBUG, msg, keysAndValues)
}

func (imp *impl) Info(args ...interface{}) {
	imp.logArgs(imp.shouldLog(INFO), INFO, args)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.logTemplate(imp.shouldLog(INFO), INFO, template, args)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.logFields(imp.shouldLog(INFO), INFO, msg, keysAndValues)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.logArgs(imp.shouldLog(WARN), WARN, args)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.logTemplate(imp.shouldLog(WARN), WARN, template, args)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.logFields(imp.shouldLog(WARN), WARN, msg, keysAndValues)
}

func (imp *impl) Error(args ...interface{}) {
	imp.logArgs(imp.shouldLog(ERROR), ERROR, args)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.logTemplate(imp.shouldLog(ERROR), ERROR, template, args)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.logFields(imp.shouldLog(ERROR), ERROR, msg, keysAndValues)
}

// These Fatal* methods log as errors then exit the process.
func (imp *impl) Fatal(args ...interface{}) {
	imp.logArgs(true, ERROR, args)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.logTemplate(true, ERROR, template, args)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.logFields(true, ERROR, msg, keysAndValues)
	os.Exit(1)
}

// Return example: "logging/impl_test.go:36".
func getCaller() zapcore.EntryCaller {
	var ok bool
	var entryCaller zapcore.EntryCaller
	// getCaller <- emit <- log{Args,Template,Fields} <- Info/Debugw/... <- user code.
	const skipToLogCaller = 4
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true

	runtimeFunc := runtime.FuncForPC(entryCaller.PC)
	if runtimeFunc != nil {
		entryCaller.Function = runtimeFunc.Name()
	}

	return entryCaller
}
