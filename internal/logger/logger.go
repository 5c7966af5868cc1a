package logger

import "go.uber.org/zap"

// New creates the process logger: JSON output in production, console output
// everywhere else.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
