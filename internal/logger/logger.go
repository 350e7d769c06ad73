// Package logger — лог с префиксом сервиса и асинхронной записью: обработчики
// запросов не ждут диска. Замер длительности вызовов встроен (DeferLogDuration).
package logger

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"
)

const queueSize = 8192

// Порог «медленного» вызова для LogDuration при уровне info.
const defaultSlowCall = 100 * time.Millisecond

var (
	prefix   string
	logLevel = levelInfo
	slowCall = defaultSlowCall
	ch       chan string
	once     sync.Once
)

type level int

const (
	levelDebug level = iota
	levelInfo
)

func initFromEnv() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		logLevel = levelDebug
	default:
		logLevel = levelInfo
	}
	if ms, err := strconv.Atoi(os.Getenv("SLOW_CALL_MS")); err == nil && ms > 0 {
		slowCall = time.Duration(ms) * time.Millisecond
	}
}

func initWorker() {
	initFromEnv()
	ch = make(chan string, queueSize)
	go func() {
		for msg := range ch {
			log.Print(msg)
		}
	}()
}

func enqueue(msg string) {
	once.Do(initWorker)
	select {
	case ch <- msg:
	default:
		// Очередь переполнена — строка теряется, обработчик не блокируется.
	}
}

// SetPrefix задаёт префикс всех последующих строк (например "api").
func SetPrefix(p string) {
	prefix = p
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	if logLevel != levelDebug {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration пишет имя вызова и длительность в миллисекундах. На уровне info
// попадают только вызовы дольше slowCall (SLOW_CALL_MS), на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if logLevel == levelDebug || elapsed >= slowCall {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration — для defer: defer logger.DeferLogDuration("repo.Method", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
