package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
)

type LogStatus int

const (
	VERBOSE LogStatus = iota
	DEBUG
	INFO
	SUCCESS
	NEW
	REMOVE
	STOP
	WARNING
	ERROR
	FATAL
)

var minLoggingLevel atomic.Int32

func init() {
	minLoggingLevel.Store(int32(INFO))
}

// SetMinLoggingLevel adjusts the level below which all
// emitted messages are discarded.
func SetMinLoggingLevel(level int) {
	minLoggingLevel.Store(int32(level))
}

// ParseLevel converts a level name (as found in configuration) in to
// the numeric level used by SetMinLoggingLevel. Unknown names
// resolve to INFO.
func ParseLevel(name string) int {
	switch strings.ToUpper(name) {
	case "VERBOSE":
		return VERBOSE.Level()
	case "DEBUG":
		return DEBUG.Level()
	case "WARNING", "WARN":
		return WARNING.Level()
	case "ERROR":
		return ERROR.Level()
	default:
		return INFO.Level()
	}
}

func (e LogStatus) Level() int { return int(e) }

func (e LogStatus) String() string {
	return []string{
		"V",
		"D",
		"I",
		"✓",
		"+",
		"-",
		"X",
		"!",
		"!!",
		"PANIC",
	}[e]
}

func (e LogStatus) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Italic),                //Verbose
		color.New(color.FgWhite, color.Italic),                //Debug
		color.New(color.FgWhite),                              //Info
		color.New(color.FgHiGreen),                            //Success
		color.New(color.FgGreen, color.Italic),                //New
		color.New(color.FgYellow, color.Italic),               //Remove
		color.New(color.FgHiYellow),                           //Stop
		color.New(color.FgYellow, color.Underline),            //Warning
		color.New(color.FgHiRed, color.Bold),                  //Error
		color.New(color.FgHiRed, color.Bold, color.Underline), //PANIC
	}[e]
}

type Logger interface {
	Emit(LogStatus, string, ...interface{})
	Verbosef(string, ...interface{})
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Successf(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	// Print, Println, Printf, Fatal and Fatalf allow a named
	// logger to be handed to libraries (e.g. goose) which expect
	// a stdlib-like logger.
	Print(...interface{})
	Println(...interface{})
	Printf(string, ...interface{})
	Fatal(...interface{})
	Fatalf(string, ...interface{})
}

type loggerImpl struct {
	name string
}

func (l *loggerImpl) Emit(status LogStatus, message string, interpolations ...interface{}) {
	Log.Emit(status, l.name, message, interpolations...)
}

func (l *loggerImpl) Verbosef(m string, i ...interface{}) { l.Emit(VERBOSE, m, i...) }
func (l *loggerImpl) Debugf(m string, i ...interface{})   { l.Emit(DEBUG, m, i...) }
func (l *loggerImpl) Infof(m string, i ...interface{})    { l.Emit(INFO, m, i...) }
func (l *loggerImpl) Successf(m string, i ...interface{}) { l.Emit(SUCCESS, m, i...) }
func (l *loggerImpl) Warnf(m string, i ...interface{})    { l.Emit(WARNING, m, i...) }
func (l *loggerImpl) Errorf(m string, i ...interface{})   { l.Emit(ERROR, m, i...) }
func (l *loggerImpl) Printf(m string, i ...interface{})   { l.Emit(INFO, ensureNewline(m), i...) }

func (l *loggerImpl) Print(v ...interface{}) {
	l.Emit(INFO, "%s", ensureNewline(fmt.Sprint(v...)))
}

func (l *loggerImpl) Println(v ...interface{}) {
	l.Emit(INFO, "%s", fmt.Sprintln(v...))
}

func (l *loggerImpl) Fatal(v ...interface{}) {
	l.Emit(FATAL, "%s", ensureNewline(fmt.Sprint(v...)))
	os.Exit(1)
}

func (l *loggerImpl) Fatalf(m string, i ...interface{}) {
	l.Emit(FATAL, ensureNewline(m), i...)
	os.Exit(1)
}

type LoggerManager interface {
	GetLogger(string) Logger
	Emit(LogStatus, string, string, ...interface{})
}

var Log LoggerManager = &loggerMgr{
	offset: 0,
}

type loggerMgr struct {
	sync.Mutex
	offset int
}

func (l *loggerMgr) GetLogger(name string) Logger {
	return &loggerImpl{name: name}
}

func (l *loggerMgr) Emit(status LogStatus, name string, message string, interpolations ...interface{}) {
	if status.Level() < int(minLoggingLevel.Load()) {
		return
	}

	l.Lock()
	defer l.Unlock()

	l.setNameOffset(len(name))
	padding := strings.Repeat(" ", l.offset-len(name))
	msg := fmt.Sprintf("[%s] %s(%s) %s", name, padding, status, fmt.Sprintf(message, interpolations...))

	status.Color().Print(msg)
}

func (l *loggerMgr) setNameOffset(offset int) {
	if offset > l.offset {
		l.offset = offset
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}

	return s + "\n"
}

func Get(name string) Logger {
	return Log.GetLogger(name)
}
