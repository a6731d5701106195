package config

import "go.uber.org/zap"

// NewLogger returns a console logger at debug level when debug is set, the production
// JSON logger otherwise.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
