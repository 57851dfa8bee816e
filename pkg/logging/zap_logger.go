package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type ZapLogger struct {
	logger *zap.Logger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger creates a new logger wrapping zap.Logger.
// Development mode logs debug and above to stdout and file, production logs info and
// above as JSON.
func NewZapLogger(config LoggerConfig) (Logger, error) {
	var zapConfig zap.Config
	if config.IsDevelopment {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeFormat)
		if term.IsTerminal(int(os.Stdout.Fd())) {
			zapConfig.EncoderConfig.EncodeLevel = customColorLevelEncoder
		}
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level = zap.NewAtomicLevelAt(getLogLevel(config.IsDevelopment))
	zapConfig.OutputPaths = []string{"stdout"}

	if !config.DisableFile {
		logDir := filepath.Join(getBaseDataDir(), LogsDir, string(config.ProcessName))
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		timestamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, filepath.Join(logDir, timestamp+".log"))
	}

	logger, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &ZapLogger{
		logger: logger.Named(string(config.ProcessName)),
	}, nil
}

func getLogLevel(isDevelopment bool) zapcore.Level {
	if isDevelopment {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func getBaseDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	return BaseDataDir
}

func customColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color, label string
	switch level {
	case zapcore.DebugLevel:
		color, label = colorBlue, "DBG"
	case zapcore.InfoLevel:
		color, label = colorGreen, "INF"
	case zapcore.WarnLevel:
		color, label = colorYellow, "WRN"
	case zapcore.ErrorLevel:
		color, label = colorRed, "ERR"
	case zapcore.FatalLevel:
		color, label = colorMagenta, "FTL"
	default:
		color, label = colorWhite, "???"
	}
	enc.AppendString(color + label + colorReset)
}

func (z *ZapLogger) Debug(msg string, tags ...any) {
	z.logger.Sugar().Debugw(msg, tags...)
}

func (z *ZapLogger) Info(msg string, tags ...any) {
	z.logger.Sugar().Infow(msg, tags...)
}

func (z *ZapLogger) Warn(msg string, tags ...any) {
	z.logger.Sugar().Warnw(msg, tags...)
}

func (z *ZapLogger) Error(msg string, tags ...any) {
	z.logger.Sugar().Errorw(msg, tags...)
}

func (z *ZapLogger) Fatal(msg string, tags ...any) {
	z.logger.Sugar().Fatalw(msg, tags...)
}

func (z *ZapLogger) Debugf(template string, args ...interface{}) {
	z.logger.Sugar().Debugf(template, args...)
}

func (z *ZapLogger) Infof(template string, args ...interface{}) {
	z.logger.Sugar().Infof(template, args...)
}

func (z *ZapLogger) Warnf(template string, args ...interface{}) {
	z.logger.Sugar().Warnf(template, args...)
}

func (z *ZapLogger) Errorf(template string, args ...interface{}) {
	z.logger.Sugar().Errorf(template, args...)
}

func (z *ZapLogger) Fatalf(template string, args ...interface{}) {
	z.logger.Sugar().Fatalf(template, args...)
}

func (z *ZapLogger) With(tags ...any) Logger {
	return &ZapLogger{
		logger: z.logger.Sugar().With(tags...).Desugar(),
	}
}

// Sync flushes buffered entries; call before process exit.
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
