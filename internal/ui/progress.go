package ui

import "go.uber.org/zap"

const progressMessageConstant = "Deployment progress"

// ProgressReporter publishes phase transitions and periodic status messages
// for a running deployment.
type ProgressReporter interface {
	ReportProgress(phase string, currentStep int, totalSteps int, message string)
}

// LoggerProgressReporter logs progress through a structured logger.
type LoggerProgressReporter struct {
	logger *zap.Logger
}

// NewLoggerProgressReporter builds a reporter over the logger. A nil logger
// yields a reporter that drops every report.
func NewLoggerProgressReporter(logger *zap.Logger) *LoggerProgressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggerProgressReporter{logger: logger}
}

// ReportProgress logs the phase, step counters, and free-text message.
func (reporter *LoggerProgressReporter) ReportProgress(phase string, currentStep int, totalSteps int, message string) {
	reporter.logger.Info(progressMessageConstant,
		zap.String("phase", phase),
		zap.Int("step", currentStep),
		zap.Int("total", totalSteps),
		zap.String("message", message),
	)
}
