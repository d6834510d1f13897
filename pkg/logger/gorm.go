package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const maxLoggedSQL = 1000

// GormLogger routes GORM output into zap, tagged with the request context.
type GormLogger struct {
	log   *zap.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// NewGormLogger maps the application log level onto GORM's. Statements slower
// than slowQuerySeconds are logged as warnings; 0 disables the check.
func NewGormLogger(l *zap.Logger, slowQuerySeconds float64, level string) *GormLogger {
	return &GormLogger{
		log:   l.Named("gorm"),
		slow:  time.Duration(slowQuerySeconds * float64(time.Second)),
		level: gormLevel(level),
	}
}

func gormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// LogMode implements gormlogger.Interface.
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	g.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	g.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	g.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (g *GormLogger) printf(ctx context.Context, at gormlogger.LogLevel, lvl zapcore.Level, msg string, data []any) {
	if g.level < at {
		return
	}
	WithContext(ctx, g.log).Log(lvl, fmt.Sprintf(msg, data...), zap.String("source", utils.FileWithLineNum()))
}

// Trace logs one executed statement. Failed statements are errors, a missing
// row is debug output, slow statements are warnings and the rest are only
// logged at info level.
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := g.slow > 0 && elapsed > g.slow

	var (
		lvl zapcore.Level
		msg string
	)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		lvl, msg = zapcore.DebugLevel, "gorm record not found"
	case err != nil && g.level >= gormlogger.Error:
		lvl, msg = zapcore.ErrorLevel, "gorm query error"
	case err == nil && slow && g.level >= gormlogger.Warn:
		lvl, msg = zapcore.WarnLevel, "gorm slow query"
	case err == nil && g.level >= gormlogger.Info:
		lvl, msg = zapcore.InfoLevel, "gorm query"
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", truncateSQL(sql)),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
		zap.String("source", utils.FileWithLineNum()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if slow {
		fields = append(fields, zap.Duration("threshold", g.slow))
	}

	WithContext(ctx, g.log).Log(lvl, msg, fields...)
}

func truncateSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "...(truncated)"
}
