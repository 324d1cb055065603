package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// callerSkip counts the frames between getCaller and the code that called a level method:
// getCaller, newEntry, the entry builder, the level helper and the level method itself.
const callerSkip = 5

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

type entry struct {
	zapcore.Entry
	fields []zapcore.Field
}

func (imp *impl) newEntry(level Level, msg string) *entry {
	e := &entry{}
	e.Time = time.Now()
	if imp.inUTC {
		e.Time = e.Time.UTC()
	}
	e.LoggerName = imp.name
	e.Level = level.AsZap()
	e.Message = msg
	e.Caller = getCaller()
	return e
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

// Sublogger shares the appenders of imp but has its own level.
func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

func (imp *impl) enabled(level Level) bool {
	return GlobalLogLevel.Level() == zapcore.DebugLevel || level >= imp.level.Get()
}

func (imp *impl) write(e *entry) {
	for _, appender := range imp.appenders {
		if err := appender.Write(e.Entry, e.fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) fromArgs(level Level, args []interface{}) *entry {
	return imp.newEntry(level, fmt.Sprint(args...))
}

func (imp *impl) fromTemplate(level Level, template string, args []interface{}) *entry {
	return imp.newEntry(level, fmt.Sprintf(template, args...))
}

// fromPairs turns keysAndValues into fields. Keys are stringified, values are kept as is and
// serialized by the appender. A trailing key without a value is logged with an error value.
func (imp *impl) fromPairs(level Level, msg string, keysAndValues []interface{}) *entry {
	e := imp.newEntry(level, msg)
	e.fields = make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			e.fields = append(e.fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		e.fields = append(e.fields, zap.Any(key, keysAndValues[i+1]))
	}
	return e
}

func (imp *impl) logArgs(level Level, args []interface{}) {
	if imp.enabled(level) {
		imp.write(imp.fromArgs(level, args))
	}
}

func (imp *impl) logTemplate(level Level, template string, args []interface{}) {
	if imp.enabled(level) {
		imp.write(imp.fromTemplate(level, template, args))
	}
}

func (imp *impl) logPairs(level Level, msg string, keysAndValues []interface{}) {
	if imp.enabled(level) {
		imp.write(imp.fromPairs(level, msg, keysAndValues))
	}
}

func (imp *impl) Debug(args ...interface{}) { imp.logArgs(DEBUG, args) }
func (imp *impl) Info(args ...interface{}) { imp.logArgs(INFO, args) }
func (imp *impl) Warn(args ...interface{}) { imp.logArgs(WARN, args) }
func (imp *impl) Error(args ...interface{}) { imp.logArgs(ERROR, args) }

func (imp *impl) Debugf(template string, args ...interface{}) { imp.logTemplate(DEBUG, template, args) }
func (imp *impl) Infof(template string, args ...interface{}) { imp.logTemplate(INFO, template, args) }
func (imp *impl) Warnf(template string, args ...interface{}) { imp.logTemplate(WARN, template, args) }
func (imp *impl) Errorf(template string, args ...interface{}) { imp.logTemplate(ERROR, template, args) }

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) { imp.logPairs(DEBUG, msg, keysAndValues) }
func (imp *impl) Infow(msg string, keysAndValues ...interface{}) { imp.logPairs(INFO, msg, keysAndValues) }
func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) { imp.logPairs(WARN, msg, keysAndValues) }
func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) { imp.logPairs(ERROR, msg, keysAndValues) }

func getCaller() zapcore.EntryCaller {
	var caller zapcore.EntryCaller
	var ok bool
	caller.PC, caller.File, caller.Line, ok = runtime.Caller(callerSkip)
	if !ok {
		return caller
	}
	caller.Defined = true
	if fn := runtime.FuncForPC(caller.PC); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
