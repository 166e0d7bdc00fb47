package volink

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MixyLabs/volink/pkg/volink/util"
)

const (
	logDirectory = "logs"
	logFilename  = "volink-latest-run.log"

	buildTypeRelease = "release"

	logTimestampFormat = "2006-01-02 15:04:05.000"
)

// NewLogger provides a logger instance for the whole program
func NewLogger(buildType string) (*zap.SugaredLogger, error) {
	var loggerConfig zap.Config

	// release: info and above, to a log file (and stderr), human-readable timestamps.
	// anything else: debug and above, to stderr only, colorful
	if buildType == buildTypeRelease {
		if err := util.EnsureDirExists(logDirectory); err != nil {
			return nil, fmt.Errorf("ensure log directory exists: %w", err)
		}

		loggerConfig = zap.NewProductionConfig()
		loggerConfig.Encoding = "console"
		loggerConfig.OutputPaths = []string{"stderr", filepath.Join(logDirectory, logFilename)}
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(logTimestampFormat)
	loggerConfig.EncoderConfig.EncodeCaller = nil

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create zap logger: %w", err)
	}

	// no reason to clutter the log with stack traces below panic level
	logger = logger.WithOptions(zap.AddStacktrace(zapcore.DPanicLevel))

	return logger.Sugar(), nil
}
