package cli

import (
	"context"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/simtemp/config"
	"go.viam.com/simtemp/configchannel"
	"go.viam.com/simtemp/device"
	"go.viam.com/simtemp/logging"
	"go.viam.com/simtemp/monitor"
)

// A session owns everything one command needs: the config, the device handle with its monitor,
// and the channel that applies attribute changes.
type session struct {
	conf    *config.Config
	logger  logging.Logger
	dev     *device.Handle
	mon     *monitor.Monitor
	channel configchannel.Channel
}

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("simtemp")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(logging.INFO)
	config.InitLoggingSettings(logger, c.Bool(flagDebug))
	return logger
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	conf := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if conf, err = config.Read(path, logger); err != nil {
			return nil, err
		}
	}

	if c.IsSet(flagDevice) {
		conf.DevicePath = c.String(flagDevice)
	}
	if c.IsSet(flagBackend) {
		conf.Backend = config.Backend(c.String(flagBackend))
	}
	if c.Bool(flagDebug) {
		conf.Debug = true
	}
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	return conf, nil
}

// openSession loads the config and builds the session. The device is opened when the command
// needs to read from it or when the ioctl backend needs its descriptor.
func openSession(c *cli.Context, needDevice bool) (*session, error) {
	logger := newLogger(c)
	conf, err := loadConfig(c, logger)
	if err != nil {
		return nil, err
	}
	s := &session{conf: conf, logger: logger}

	var ctrl configchannel.Controller
	if needDevice || conf.Backend == config.BackendControlCode {
		dev, err := device.Open(conf.DevicePath, logger.Sublogger("device"))
		if err != nil {
			return nil, err
		}
		poller, err := monitor.NewPoller(dev.Fd())
		if err != nil {
			return nil, multierr.Combine(err, dev.Close())
		}
		s.dev = dev
		s.mon = monitor.New(dev, poller, logger.Sublogger("monitor"), monitor.WithPath(dev.Path()))
		ctrl = dev
	}

	channel, err := configchannel.New(conf, ctrl, logger.Sublogger("config"))
	if err != nil {
		return nil, multierr.Combine(err, s.close())
	}
	s.channel = channel
	return s, nil
}

func (s *session) close() error {
	err := s.logger.Sync()
	if s.mon != nil {
		err = multierr.Combine(err, s.mon.Close())
	}
	if s.dev != nil {
		err = multierr.Combine(err, s.dev.Close())
	}
	return err
}

// applySettings pushes the configured attribute values. A failed change is reported and the
// remaining ones are still applied.
func (s *session) applySettings(ctx context.Context, c *cli.Context, settings config.DeviceSettings) {
	apply := func(attr configchannel.Attribute, value int64) {
		if err := s.channel.Set(ctx, attr, value); err != nil {
			warningf(c.App.ErrWriter, "%v", err)
			return
		}
		s.logger.Infow("attribute applied", "attribute", attr, "value", value)
	}

	if settings.ThresholdMilliC != nil {
		apply(configchannel.Threshold, int64(*settings.ThresholdMilliC))
	}
	if settings.SamplingPeriodMs != nil {
		apply(configchannel.SamplingPeriod, int64(*settings.SamplingPeriodMs))
	}
	if settings.Mode != "" {
		mode, ok := configchannel.ParseMode(settings.Mode)
		if !ok {
			warningf(c.App.ErrWriter, "unknown mode %q", settings.Mode)
			return
		}
		apply(configchannel.Mode, mode)
	}
}

func (s *session) statusOpcode() uint32 {
	if conf, err := s.conf.ControlCodeConfig(); err == nil {
		return conf.StatusOpcode
	}
	return config.OpcodeGetStatus
}

func (s *session) logStats() {
	if s.mon == nil {
		return
	}
	stats := s.mon.Stats()
	s.logger.Infow("monitor finished",
		"wakeups", stats.Wakeups,
		"timeouts", stats.Timeouts,
		"alerts", stats.Alerts,
		"samples", stats.Samples,
		"drain_aborts", stats.DrainAborts,
	)
}

// fatal turns err into an exit with status 1.
func fatal(err error) error {
	return cli.Exit(err.Error(), 1)
}

var errWatchNeedsConfig = errors.Errorf("--%s needs --%s", flagWatchConfig, flagConfig)
