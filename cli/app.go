// Package cli contains the simtemp command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/simtemp/config"
)

const (
	flagConfig      = "config"
	flagDevice      = "device"
	flagBackend     = "backend"
	flagDebug       = "debug"
	flagCount       = "count"
	flagTimeoutMs   = "timeout-ms"
	flagThreshold   = "threshold"
	flagWatchConfig = "watch-config"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter set to errOut.
// Samples and verdicts go to out, diagnostics and logs to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "simtemp",
		Usage:           "read, monitor and configure the simtemp temperature sensor",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagDevice,
				Usage: "character device to open",
				Value: config.DefaultDevicePath,
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "how attribute changes reach the driver: sysfs or ioctl",
				Value: string(config.BackendAttributeFile),
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "read",
				Usage: "print a fixed number of samples",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagCount,
						Usage: "number of samples to print",
						Value: config.DefaultReadCount,
					},
					&cli.UintFlag{
						Name:  flagTimeoutMs,
						Usage: "log a timeout after waiting this long for a sample, then keep waiting",
						Value: config.DefaultReadTimeoutMs,
					},
				},
				Action: ReadAction,
			},
			{
				Name:  "monitor",
				Usage: "print samples and threshold alerts until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagWatchConfig,
						Usage: "re-apply the config file settings whenever the file changes",
					},
				},
				Action: MonitorAction,
			},
			{
				Name:  "test",
				Usage: "check that lowering the threshold raises an alert",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagThreshold,
						Usage: "threshold to set in milli-degrees Celsius",
						Value: config.DefaultTestThresholdMC,
					},
					&cli.UintFlag{
						Name:  flagTimeoutMs,
						Usage: "how long to wait for the alert",
						Value: config.DefaultTestTimeoutMs,
					},
				},
				Action: TestAction,
			},
			{
				Name:      "set",
				Usage:     "change a driver attribute",
				ArgsUsage: "<threshold|sampling|mode> <value>",
				Action:    SetAction,
			},
			{
				Name:      "get",
				Usage:     "read driver attributes back from sysfs",
				ArgsUsage: "[threshold|sampling|mode]",
				Action:    GetAction,
			},
			{
				Name:   "status",
				Usage:  "show the driver status flags",
				Action: StatusAction,
			},
			{
				Name:            "config",
				Usage:           "work with config files",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "schema",
						Usage:  "print the JSON schema of the config file",
						Action: ConfigSchemaAction,
					},
				},
			},
		},
	}
}
