package main

import "github.com/urfave/cli/v3"

var (
	projectPath string
	backendName string
	metricsFile string
	streamMode  string
	logLevel    string
	logFormat   string
	debug       bool
)

func projectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "path to the project file (.toml, .yaml, .json)",
			Value:       defaultProjectFile,
			Destination: &projectPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "override the project backend (llama, toy)",
			Destination: &backendName,
		},
		&cli.StringFlag{
			Name:        "metrics-file",
			Usage:       "write Prometheus metrics to this file on exit",
			Destination: &metricsFile,
		},
	}
}

// samplingFlags override the project's [sampling] table. They have no
// destinations; samplingOverrides reads only the ones that were set.
func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "strategy",
			Aliases: []string{"s"},
			Usage:   "sampling strategy (none, temperature, top_p, top_k, mirostat_v2)",
		},
		&cli.FloatFlag{
			Name:    "temperature",
			Aliases: []string{"temp", "t"},
			Usage:   "temperature for the temperature strategy",
		},
		&cli.FloatFlag{
			Name:    "top-p",
			Aliases: []string{"top_p"},
			Usage:   "cumulative probability for the top_p strategy",
		},
		&cli.IntFlag{
			Name:    "top-k",
			Aliases: []string{"top_k"},
			Usage:   "candidate count for the top_k strategy",
		},
		&cli.IntFlag{
			Name:    "min-keep",
			Aliases: []string{"min_keep"},
			Usage:   "minimum candidates kept by top_p and top_k",
		},
		&cli.FloatFlag{
			Name:  "tau",
			Usage: "target surprise for mirostat_v2",
		},
		&cli.FloatFlag{
			Name:  "eta",
			Usage: "learning rate for mirostat_v2",
		},
		&cli.IntFlag{
			Name:  "seed",
			Usage: "sampling RNG seed (0 = seed from the clock)",
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (instant, smooth, quiet)",
			Value:       string(StreamInstant),
			Destination: &streamMode,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func sessionFlags() []cli.Flag {
	flags := projectFlags()
	flags = append(flags, samplingFlags()...)
	return append(flags, loggingFlags()...)
}
