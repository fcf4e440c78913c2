package log

import "gopkg.in/natefinch/lumberjack.v2"

// FileAppenderOpt configures the rotating log file appender. Sizes are
// megabytes, ages are days, matching the log.file config section.
type FileAppenderOpt struct {
	Filename   string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AddFileAppender registers a lumberjack-rotated file as an appender.
func (m *MultiWriter) AddFileAppender(opt FileAppenderOpt) *MultiWriter {
	m.writers = append(m.writers, &lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    opt.MaxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		Compress:   opt.Compress,
	})
	return m
}
