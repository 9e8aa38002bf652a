package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/novella/internal/config"
	"github.com/aretw0/novella/internal/logging"
)

// NewLogger builds the service logger. The returned level can be changed
// while the logger is in use, e.g. after a config reload.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, *slog.LevelVar, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(level)
	if cfg.LogFormat == "json" {
		return logging.NewJSON(w, lv), lv, nil
	}
	return slog.New(slog.NewTextHandler(w, logging.Options(lv))), lv, nil
}

// ApplyLevel updates lv from a reloaded configuration.
func ApplyLevel(lv *slog.LevelVar, cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	lv.Set(level)
	return nil
}
