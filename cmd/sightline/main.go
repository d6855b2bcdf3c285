package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"sightline/internal/config"
)

var version = "dev"

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "sightline",
		Usage:   "narrate the surroundings of a walking camera",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to a YAML or JSON config file",
				EnvVars: []string{"SIGHTLINE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "override log_level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start the pipeline",
				Action: runAction,
			},
			{
				Name:   "check",
				Usage:  "validate the config and print the effective values",
				Action: checkAction,
			},
		},
		Action: runAction,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sightline:", err)
		os.Exit(1)
	}
}

func loadManager(c *cli.Context) (*config.Manager, error) {
	path := config.ResolvePath(c.String(flagConfig))
	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return mgr, nil
}

func checkAction(c *cli.Context) error {
	mgr, err := loadManager(c)
	if err != nil {
		return err
	}
	cfg := *mgr.Get()
	// keep secrets out of terminal scrollback
	cfg.LLM.APIKey = mask(cfg.LLM.APIKey)
	cfg.Speech.APIKey = mask(cfg.Speech.APIKey)
	cfg.S3.SecretKey = mask(cfg.S3.SecretKey)
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "# config ok (%s)\n%s", describePath(mgr.Path()), out)
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func describePath(path string) string {
	if path == "" {
		return "defaults and environment"
	}
	return path
}
