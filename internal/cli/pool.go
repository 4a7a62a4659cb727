package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"yutai-ranker/internal/config"
)

// poolFlags override the worker pool settings of the config for one command.
type poolFlags struct {
	preset     string
	workers    int
	delay      time.Duration
	maxRetries int
}

func addPoolFlags(cmd *cobra.Command, f *poolFlags) {
	cmd.Flags().StringVar(&f.preset, "preset", "", "Worker preset: fast, normal or conservative")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Number of concurrent workers")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "Pause after each identifier per worker")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "Retries per identifier after the first attempt before it is marked failed")
}

// apply layers the preset and then the explicit flags over cfg.
func (f *poolFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("preset") {
		if err := cfg.ApplyPreset(f.preset); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("workers") {
		cfg.Scraper.Workers = f.workers
	}
	if cmd.Flags().Changed("delay") {
		cfg.Scraper.Delay = f.delay
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Scraper.MaxRetries = f.maxRetries
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
