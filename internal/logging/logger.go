// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

const serviceName = "campus-extractor"

// New builds a zap.Logger configured for development or production.
// Production output is JSON with a fixed service field for log routing.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": serviceName}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// ForJob scopes a logger to one pipeline run.
func ForJob(logger *zap.Logger, job extract.DepartmentJob, runID string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.String("mode", string(job.Mode)),
	}
	if job.Department != "" {
		fields = append(fields, zap.String("department", job.Department))
	}
	if job.Debug {
		fields = append(fields, zap.Bool("debug", true))
	}
	return logger.With(fields...)
}
