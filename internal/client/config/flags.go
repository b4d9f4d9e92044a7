package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/flagx"
)

// parseFlags overlays cfg with the flags it knows about. Other arguments are
// filtered out with flagx.FilterArgs so they do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-n", "-d", "-u", "-i"})

	fs := flag.NewFlagSet("planetsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "planet server API base URL")
	fs.StringVar(&cfg.NodeID, "n", cfg.NodeID, "node id")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	username := fs.String("u", "", "username (enables basic auth)")
	poll := fs.Int("i", 0, "status poll interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *username != "" {
		cfg.Username = *username
		cfg.AuthEnabled = true
	}
	var err error
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "i" {
			return
		}
		if *poll <= 0 {
			err = fmt.Errorf("parse flags: status poll interval must be positive, got %d", *poll)
			return
		}
		cfg.StatusPollInterval = time.Duration(*poll) * time.Second
	})
	return err
}
