// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New builds the process logger. Production uses JSON output; everything
// else gets the colored development encoder. service is attached to every line.
func New(env, service string) Sugared {
	var z *zap.Logger
	var err error
	if env == "prod" {
		z, err = zap.NewProduction()
	} else {
		z, err = zap.NewDevelopment()
	}
	if err != nil {
		z = zap.NewNop()
	}
	if service != "" {
		z = z.With(zap.String("service", service))
	}
	return z.Sugar()
}

// Nop returns a logger that discards everything (tests, optional deps).
func Nop() Sugared { return zap.NewNop().Sugar() }
