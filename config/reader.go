package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"go.viam.com/simtemp/logging"
)

// Read reads a config from the given file. Environment variables referenced as $VAR or ${VAR}
// are substituted before parsing.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}

	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file
// the reader originated from. Fields missing from the input keep their defaults.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	conf := Default()
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(conf); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", originalPath)
	}
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	logger.Debugw("config loaded",
		"path", originalPath,
		"device", conf.DevicePath,
		"backend", conf.Backend)
	return conf, nil
}

// Schema returns the JSON schema of the config file.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
