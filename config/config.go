// Package config defines the structures to configure the simtemp client: which device to open,
// which backend applies attribute changes and how the self-test behaves.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Backend selects how attribute changes reach the device.
type Backend string

// The known backends.
const (
	BackendAttributeFile = Backend("sysfs")
	BackendControlCode   = Backend("ioctl")
)

// Defaults matching the simtemp driver.
const (
	DefaultDevicePath      = "/dev/simtemp"
	DefaultAttributeDir    = "/sys/class/misc/simtemp"
	DefaultReadCount       = 5
	DefaultReadTimeoutMs   = 2000
	DefaultTestThresholdMC = 20000
	DefaultTestTimeoutMs   = 5000
)

// Attribute names as used in config files. They are the logical names, not the sysfs file names.
const (
	AttributeThreshold      = "threshold_milliC"
	AttributeSamplingPeriod = "sampling_period_ms"
	AttributeMode           = "mode"
)

// KnownAttributes lists every attribute a backend may be asked to set.
var KnownAttributes = []string{AttributeThreshold, AttributeSamplingPeriod, AttributeMode}

// KnownModes lists the values of the mode attribute.
var KnownModes = []string{"normal", "noisy"}

// Control codes from the driver's ioctl header, magic 'T'.
const (
	OpcodeSetMode      = uint32(0x40045401) // _IOW('T', 1, int)
	OpcodeGetStatus    = uint32(0x80045402) // _IOR('T', 2, int)
	OpcodeSetThreshold = uint32(0x40045403) // _IOW('T', 3, __s32)
	OpcodeSetSampling  = uint32(0x40045404) // _IOW('T', 4, __u32)
)

// A Config describes one simtemp session.
type Config struct {
	DevicePath string  `json:"device_path"`
	Backend    Backend `json:"backend"`
	// Attributes holds the backend specific settings. They are converted into an
	// AttributeFileConfig or a ControlCodeConfig depending on Backend.
	Attributes map[string]interface{} `json:"attributes,omitempty"`

	ReadCount     int  `json:"read_count,omitempty"`
	ReadTimeoutMs uint `json:"read_timeout_ms,omitempty"`
	Debug         bool `json:"debug,omitempty"`

	SelfTest SelfTestConfig `json:"self_test"`
	Settings DeviceSettings `json:"settings,omitempty"`

	ConvertedAttributes interface{} `json:"-"`
}

// SelfTestConfig configures the threshold self-test.
type SelfTestConfig struct {
	ThresholdMilliC int32 `json:"threshold_mc"`
	TimeoutMs       uint  `json:"timeout_ms"`
}

// DeviceSettings are attribute values pushed to the driver when a session starts and whenever a
// watched config file changes. Unset fields are left alone.
type DeviceSettings struct {
	ThresholdMilliC  *int32  `json:"threshold_mc,omitempty"`
	SamplingPeriodMs *uint32 `json:"sampling_period_ms,omitempty"`
	Mode             string  `json:"mode,omitempty"`
}

// Empty reports whether no setting is present.
func (s DeviceSettings) Empty() bool {
	return s.ThresholdMilliC == nil && s.SamplingPeriodMs == nil && s.Mode == ""
}

// AttributeFileConfig configures the sysfs backend.
type AttributeFileConfig struct {
	BaseDir string `json:"base_dir"`
	// Files maps a logical attribute name to the file name under BaseDir.
	Files map[string]string `json:"files,omitempty"`
}

// ControlCodeConfig configures the ioctl backend.
type ControlCodeConfig struct {
	// Opcodes maps a logical attribute name to its control code.
	Opcodes      map[string]uint32 `json:"opcodes,omitempty"`
	StatusOpcode uint32            `json:"status_opcode,omitempty"`
}

// DefaultAttributeFiles returns the sysfs file names the driver registers.
func DefaultAttributeFiles() map[string]string {
	return map[string]string{
		AttributeThreshold:      "threshold_mC",
		AttributeSamplingPeriod: "sampling_ms",
		AttributeMode:           "mode",
	}
}

// DefaultOpcodes returns the control codes the driver accepts.
func DefaultOpcodes() map[string]uint32 {
	return map[string]uint32{
		AttributeThreshold:      OpcodeSetThreshold,
		AttributeSamplingPeriod: OpcodeSetSampling,
		AttributeMode:           OpcodeSetMode,
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DevicePath:    DefaultDevicePath,
		Backend:       BackendAttributeFile,
		ReadCount:     DefaultReadCount,
		ReadTimeoutMs: DefaultReadTimeoutMs,
		SelfTest: SelfTestConfig{
			ThresholdMilliC: DefaultTestThresholdMC,
			TimeoutMs:       DefaultTestTimeoutMs,
		},
	}
}

// ReadTimeout is the fallback per-wait timeout of the bounded-count read mode.
func (conf *Config) ReadTimeout() time.Duration {
	return time.Duration(conf.ReadTimeoutMs) * time.Millisecond
}

// SelfTestTimeout is the window in which the self-test must observe an alert.
func (conf *Config) SelfTestTimeout() time.Duration {
	return time.Duration(conf.SelfTest.TimeoutMs) * time.Millisecond
}

// Validate ensures all parts of the config are valid and converts the backend attributes.
func (conf *Config) Validate(path string) error {
	if conf.DevicePath == "" {
		return NewFieldRequiredError(path, "device_path")
	}
	if conf.ReadCount < 0 {
		return NewValidationError(path, errors.Errorf("read_count must not be negative, got %d", conf.ReadCount))
	}
	if conf.SelfTest.TimeoutMs == 0 {
		return NewFieldRequiredError(fmt.Sprintf("%s.self_test", path), "timeout_ms")
	}

	if conf.Settings.SamplingPeriodMs != nil && *conf.Settings.SamplingPeriodMs == 0 {
		return NewValidationError(fmt.Sprintf("%s.settings", path), errors.New("sampling_period_ms must be positive"))
	}
	if mode := conf.Settings.Mode; mode != "" && !lo.Contains(KnownModes, mode) {
		return NewValidationError(fmt.Sprintf("%s.settings", path),
			errors.Errorf("unknown mode %q, expected one of %v", mode, KnownModes))
	}

	converted, err := conf.convertAttributes()
	if err != nil {
		return NewValidationError(fmt.Sprintf("%s.attributes", path), err)
	}
	conf.ConvertedAttributes = converted
	return nil
}

func (conf *Config) convertAttributes() (interface{}, error) {
	switch conf.Backend {
	case BackendAttributeFile:
		converted := &AttributeFileConfig{}
		if err := decodeAttributes(conf.Attributes, converted); err != nil {
			return nil, err
		}
		if converted.BaseDir == "" {
			converted.BaseDir = DefaultAttributeDir
		}
		converted.Files = mergeDefaults(converted.Files, DefaultAttributeFiles())
		if err := checkAttributeNames(lo.Keys(converted.Files)); err != nil {
			return nil, err
		}
		return converted, nil
	case BackendControlCode:
		converted := &ControlCodeConfig{}
		if err := decodeAttributes(conf.Attributes, converted); err != nil {
			return nil, err
		}
		converted.Opcodes = mergeDefaults(converted.Opcodes, DefaultOpcodes())
		if converted.StatusOpcode == 0 {
			converted.StatusOpcode = OpcodeGetStatus
		}
		if err := checkAttributeNames(lo.Keys(converted.Opcodes)); err != nil {
			return nil, err
		}
		return converted, nil
	default:
		return nil, errors.Errorf("unknown backend %q, expected %q or %q",
			conf.Backend, BackendAttributeFile, BackendControlCode)
	}
}

// AttributeFileConfig returns the converted sysfs backend settings.
func (conf *Config) AttributeFileConfig() (*AttributeFileConfig, error) {
	converted, ok := conf.ConvertedAttributes.(*AttributeFileConfig)
	if !ok {
		return nil, errors.Errorf("expected %T but got %T", converted, conf.ConvertedAttributes)
	}
	return converted, nil
}

// ControlCodeConfig returns the converted ioctl backend settings.
func (conf *Config) ControlCodeConfig() (*ControlCodeConfig, error) {
	converted, ok := conf.ConvertedAttributes.(*ControlCodeConfig)
	if !ok {
		return nil, errors.Errorf("expected %T but got %T", converted, conf.ConvertedAttributes)
	}
	return converted, nil
}

func decodeAttributes(attributes map[string]interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           result,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "error creating decoder")
	}
	return decoder.Decode(attributes)
}

func mergeDefaults[V any](configured, defaults map[string]V) map[string]V {
	merged := make(map[string]V, len(defaults))
	for name, value := range defaults {
		merged[name] = value
	}
	for name, value := range configured {
		merged[name] = value
	}
	return merged
}

func checkAttributeNames(names []string) error {
	unknown := lo.Without(names, KnownAttributes...)
	if len(unknown) > 0 {
		return errors.Errorf("unknown attributes %v, expected a subset of %v", unknown, KnownAttributes)
	}
	return nil
}
