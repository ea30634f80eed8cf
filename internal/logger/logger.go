package logger

import (
	"os"
	"strings"

	"gridmaker/internal/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var root *zap.Logger

// Init 根据配置初始化全局zap日志记录器
func Init(cfg models.LogConfig) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel) // 默认为Info级别
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// 为控制台输出启用颜色
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	var cores []zapcore.Core

	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		// 用lumberjack进行日志切割
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(consoleEncoder, fileWriter, logLevel))
	}
	if output == "console" || output == "both" || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), logLevel))
	}

	root = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// S 返回全局的sugared logger实例
func S() *zap.SugaredLogger {
	if root == nil {
		// logger未初始化时提供一个默认的应急logger
		l, _ := zap.NewDevelopment()
		return l.Sugar()
	}
	return root.Sugar()
}

// Named 返回带组件名的sugared logger，引擎按交易对取各自的logger
func Named(name string) *zap.SugaredLogger {
	return S().Named(name)
}

// Sync 刷新所有缓冲的日志，进程退出前调用
func Sync() {
	if root != nil {
		_ = root.Sync()
	}
}
