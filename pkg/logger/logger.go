package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志初始化参数
type Options struct {
	Debug bool
	// File 非空时同时写入轮转文件
	File     string
	Rotation Rotation
	// Console 控制台输出，默认 os.Stdout
	Console io.Writer
}

// Rotation 日志文件轮转参数
type Rotation struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// DefaultRotation 默认保留 3 个 100MB 的文件，最长 28 天
func DefaultRotation() Rotation {
	return Rotation{
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Logger 封装了 zerolog.Logger 并包含同步机制
type Logger struct {
	logger  zerolog.Logger
	console io.Writer
	file    *lumberjack.Logger
	mutex   sync.RWMutex
}

// NewLogger 初始化日志系统并替换全局 logger
func NewLogger(opts Options) *Logger {
	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	out := opts.Console
	if out == nil {
		out = os.Stdout
	}

	l := &Logger{
		console: zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stdout,
		},
	}
	l.rebuild()

	if opts.File != "" {
		l.SetLogOutput(opts.File, opts.Rotation)
	}
	return l
}

// rebuild 根据当前输出重建 logger，调用方需持有写锁或处于初始化阶段
func (l *Logger) rebuild() {
	writers := []io.Writer{l.console}
	if l.file != nil {
		writers = append(writers, l.file)
	}

	l.logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()

	log.Logger = l.logger
}

// GetLogger 返回带有 component 字段的日志记录器
func (l *Logger) GetLogger(component string) zerolog.Logger {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.logger.With().
		Str("component", component).
		Logger()
}

// SetLogOutput 增加轮转文件输出；已有文件输出时替换之
func (l *Logger) SetLogOutput(logFilePath string, rotation Rotation) {
	if rotation == (Rotation{}) {
		rotation = DefaultRotation()
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		l.file.Close()
	}
	l.file = fileWriter
	l.rebuild()
}

// Close 关闭文件输出
func (l *Logger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.rebuild()
	return err
}
