// Package common provides shared wiring for command implementations.
package common

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jonesrussell/nmls-crawler/internal/config"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// DebugKey is the viper key the root --debug flag is bound to.
const DebugKey = "app.debug"

// CommandDeps holds common dependencies for all commands.
type CommandDeps struct {
	Logger logger.Logger
	Config *config.Config
}

// NewCommandDeps loads configuration from the global viper instance and
// builds the logger.
func NewCommandDeps() (*CommandDeps, error) {
	return newCommandDeps(viper.GetViper())
}

func newCommandDeps(v *viper.Viper) (*CommandDeps, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if v.GetBool(DebugKey) {
		cfg.Logger.Level = logger.DebugLevel
		cfg.Logger.Development = true
	}

	log, err := logger.New(*cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &CommandDeps{Logger: log, Config: cfg}, nil
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}
