package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/simtemp/config"
	"go.viam.com/simtemp/configchannel"
	"go.viam.com/simtemp/monitor"
	"go.viam.com/simtemp/sample"
	"go.viam.com/simtemp/selftest"
)

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// ReadAction prints a fixed number of samples.
func ReadAction(c *cli.Context) error {
	s, err := openSession(c, true)
	if err != nil {
		return fatal(err)
	}
	defer utils.UncheckedErrorFunc(s.close)

	ctx, stop := signalContext(c)
	defer stop()
	s.applySettings(ctx, c, s.conf.Settings)

	count := s.conf.ReadCount
	if c.IsSet(flagCount) {
		count = c.Int(flagCount)
	}
	timeout := s.conf.ReadTimeout()
	if c.IsSet(flagTimeoutMs) {
		timeout = time.Duration(c.Uint(flagTimeoutMs)) * time.Millisecond
	}

	printf(c.App.ErrWriter, "Reading %d samples from %s. Press Ctrl+C to stop.", count, s.conf.DevicePath)
	_, err = s.mon.ReadCount(ctx, count, timeout, func(smp sample.Sample) {
		printf(c.App.Writer, "%s", sample.FormatLine(smp))
	})
	s.logStats()
	if err != nil {
		return fatal(err)
	}
	return nil
}

// MonitorAction prints samples and alert banners until interrupted or until the device reports an
// error condition.
func MonitorAction(c *cli.Context) error {
	if c.Bool(flagWatchConfig) && c.String(flagConfig) == "" {
		return fatal(errWatchNeedsConfig)
	}
	s, err := openSession(c, true)
	if err != nil {
		return fatal(err)
	}
	defer utils.UncheckedErrorFunc(s.close)

	ctx, stop := signalContext(c)
	defer stop()
	s.applySettings(ctx, c, s.conf.Settings)

	if c.Bool(flagWatchConfig) {
		watcher, err := config.NewWatcher(c.String(flagConfig), s.logger.Sublogger("watcher"), func(conf *config.Config) {
			s.applySettings(ctx, c, conf.Settings)
		})
		if err != nil {
			return fatal(err)
		}
		defer utils.UncheckedErrorFunc(watcher.Close)
	}

	printf(c.App.ErrWriter, "Monitoring events on %s. Press Ctrl+C to stop.", s.conf.DevicePath)
	err = s.mon.Run(ctx, monitorHandlers(c))
	s.logStats()
	if err != nil {
		return fatal(err)
	}
	return nil
}

func monitorHandlers(c *cli.Context) monitor.Handlers {
	return monitor.Handlers{
		OnAlert: func(context.Context) {
			printf(c.App.Writer, "%s", alertColor(alertBanner))
		},
		OnSample: func(_ context.Context, smp sample.Sample) {
			printf(c.App.Writer, "%s", sample.FormatLine(smp))
		},
	}
}

// TestAction runs the threshold self-test. It exits 0 on PASS and 1 on FAIL.
func TestAction(c *cli.Context) error {
	s, err := openSession(c, true)
	if err != nil {
		return fatal(err)
	}
	defer utils.UncheckedErrorFunc(s.close)

	ctx, stop := signalContext(c)
	defer stop()

	harness := selftest.New(s.channel, s.mon, s.logger.Sublogger("selftest"))
	harness.Threshold = s.conf.SelfTest.ThresholdMilliC
	if c.IsSet(flagThreshold) {
		harness.Threshold = int32(c.Int(flagThreshold))
	}
	harness.Timeout = s.conf.SelfTestTimeout()
	if c.IsSet(flagTimeoutMs) {
		harness.Timeout = time.Duration(c.Uint(flagTimeoutMs)) * time.Millisecond
	}

	printf(c.App.ErrWriter, "Waiting up to %s for a threshold alert below %d mC.", harness.Timeout, harness.Threshold)
	result, err := harness.Run(ctx)
	if err != nil {
		Errorf(c.App.ErrWriter, "%v", err)
	}
	if result.Verdict == selftest.Pass {
		printf(c.App.Writer, "%s: threshold alert received after %s", passColor(result.Verdict), result.Elapsed)
		if result.Sample != nil {
			printf(c.App.Writer, "%s", sample.FormatLine(*result.Sample))
		}
		return nil
	}
	printf(c.App.Writer, "%s: no threshold alert within %s", failColor(result.Verdict), harness.Timeout)
	return cli.Exit("", result.Verdict.ExitCode())
}

func parseValue(attr configchannel.Attribute, raw string) (int64, error) {
	if attr == configchannel.Mode {
		mode, ok := configchannel.ParseMode(raw)
		if !ok {
			return 0, errors.Errorf("unknown mode %q, expected one of %v", raw, config.KnownModes)
		}
		return mode, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value %q for %s", raw, attr)
	}
	return value, nil
}

// SetAction changes one attribute. A change the driver refuses is reported without failing the
// command.
func SetAction(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fatal(errors.New("usage: set <threshold|sampling|mode> <value>"))
	}
	attr, err := configchannel.ParseAttribute(c.Args().Get(0))
	if err != nil {
		return fatal(err)
	}
	value, err := parseValue(attr, c.Args().Get(1))
	if err != nil {
		return fatal(err)
	}

	s, err := openSession(c, false)
	if err != nil {
		return fatal(err)
	}
	defer utils.UncheckedErrorFunc(s.close)

	if err := s.channel.Set(c.Context, attr, value); err != nil {
		var configErr *configchannel.ConfigError
		if errors.As(err, &configErr) {
			warningf(c.App.ErrWriter, "%v", err)
			return nil
		}
		return fatal(err)
	}
	printf(c.App.Writer, "%s set to %s via %s", attr, c.Args().Get(1), s.channel.Name())
	return nil
}

// GetAction prints attributes read back from sysfs.
func GetAction(c *cli.Context) error {
	attrs := []configchannel.Attribute{configchannel.Threshold, configchannel.SamplingPeriod, configchannel.Mode}
	if c.Args().Len() > 0 {
		attr, err := configchannel.ParseAttribute(c.Args().First())
		if err != nil {
			return fatal(err)
		}
		attrs = []configchannel.Attribute{attr}
	}

	s, err := openSession(c, false)
	if err != nil {
		return fatal(err)
	}
	defer utils.UncheckedErrorFunc(s.close)

	files, ok := s.channel.(*configchannel.AttributeFileBackend)
	if !ok {
		return fatal(errors.Errorf("get reads sysfs attributes, the %s backend cannot", s.channel.Name()))
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Attribute", "Value"})
	for _, attr := range attrs {
		value, err := files.Get(c.Context, attr)
		if err != nil {
			return fatal(err)
		}
		shown := strconv.FormatInt(value, 10)
		if attr == configchannel.Mode && value >= 0 && value < int64(len(config.KnownModes)) {
			shown = config.KnownModes[value]
		}
		t.AppendRow(table.Row{string(attr), shown})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// StatusAction prints the driver status flags.
func StatusAction(c *cli.Context) error {
	s, err := openSession(c, true)
	if err != nil {
		return fatal(err)
	}
	defer utils.UncheckedErrorFunc(s.close)

	flags, err := s.dev.Status(s.statusOpcode())
	if err != nil {
		return fatal(err)
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Flag", "Set"})
	for _, flag := range []struct {
		name string
		bit  sample.Flags
	}{
		{"NEW_SAMPLE", sample.FlagNewSample},
		{"THRESHOLD_CROSSED", sample.FlagThresholdCrossed},
		{"ERROR", sample.FlagError},
	} {
		t.AppendRow(table.Row{flag.name, flags.Has(flag.bit)})
	}
	t.AppendFooter(table.Row{"raw", flags.String()})
	printf(c.App.Writer, "%s", t.Render())

	if files, ok := s.channel.(*configchannel.AttributeFileBackend); ok {
		stats, err := files.Stats(c.Context)
		if err != nil {
			warningf(c.App.ErrWriter, "%v", err)
			return nil
		}
		printf(c.App.Writer, "sysfs: %s", stats)
	}
	return nil
}

// ConfigSchemaAction prints the JSON schema of the config file.
func ConfigSchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return fatal(err)
	}
	printf(c.App.Writer, "%s", out)
	return nil
}
