// Package log 封装 zap，提供全局的结构化日志入口。
package log

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 未调用 Init 之前使用 no-op logger，库代码和测试可以直接记录日志。
var sugar = zap.NewNop().Sugar()

// Init 按级别和格式构建全局 logger。format 为 "console" 时使用带颜色的开发格式，其余情况输出 JSON；
// outputDir 非空时额外写入 <outputDir>/app.log。
func Init(level, format, outputDir string) {
	logger, err := buildConfig(level, format, outputDir).Build()
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

func buildConfig(level, format, outputDir string) zap.Config {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	}

	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
		atomicLevel.SetLevel(zap.InfoLevel)
	}
	cfg.Level = atomicLevel

	cfg.OutputPaths = []string{"stdout"}
	if outputDir != "" {
		_ = os.MkdirAll(outputDir, 0o755)
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputDir, "app.log"))
	}
	return cfg
}

// Info 记录一条 info 级别的日志
func Info(msg string) {
	sugar.Info(msg)
}

// Infof 使用格式化字符串记录一条 info 级别的日志
func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 使用键值对记录一条结构化日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Error 记录一条 error 级别的日志，并附带 error 信息
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Fatal 记录日志后退出进程。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 刷新缓冲区。
func Sync() {
	_ = sugar.Sync()
}

// LeveledLogger 把全局 logger 适配为 retryablehttp.LeveledLogger。
type LeveledLogger struct{}

// Leveled 返回一个写入全局 logger 的 LeveledLogger，供 HTTP 重试客户端使用。
func Leveled() LeveledLogger { return LeveledLogger{} }

func (LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

func (LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func (LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	sugar.Debugw(msg, keysAndValues...)
}

func (LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}
