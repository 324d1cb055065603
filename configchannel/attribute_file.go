package configchannel

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/simtemp/logging"
)

// statsFile is the read-only attribute holding the driver's status flags.
const statsFile = "stats"

// AttributeFileBackend writes the driver's sysfs attribute files.
type AttributeFileBackend struct {
	BaseDir string
	Files   map[Attribute]string

	logger logging.Logger
}

// NewAttributeFileBackend returns a backend rooted at baseDir.
func NewAttributeFileBackend(baseDir string, files map[Attribute]string, logger logging.Logger) *AttributeFileBackend {
	return &AttributeFileBackend{BaseDir: baseDir, Files: files, logger: logger}
}

// Name returns "sysfs".
func (b *AttributeFileBackend) Name() string {
	return "sysfs"
}

func (b *AttributeFileBackend) fail(kind ErrorKind, attr Attribute, err error) error {
	return &ConfigError{Kind: kind, Attribute: attr, Backend: b.Name(), Err: err}
}

func (b *AttributeFileBackend) path(attr Attribute) (string, error) {
	name, ok := b.Files[attr]
	if !ok {
		return "", b.fail(NotFound, attr, errors.New("no attribute file configured"))
	}
	return filepath.Join(b.BaseDir, name), nil
}

// Set writes the decimal value followed by a newline. The file is never created: a missing file
// means the driver is not loaded.
func (b *AttributeFileBackend) Set(ctx context.Context, attr Attribute, value int64) error {
	if err := ctx.Err(); err != nil {
		return b.fail(Rejected, attr, err)
	}
	path, err := b.path(attr)
	if err != nil {
		return err
	}

	text := strconv.FormatInt(value, 10)
	if attr == Mode {
		name, ok := modeNames[value]
		if !ok {
			return b.fail(Rejected, attr, errors.Errorf("invalid mode %d", value))
		}
		text = name
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return b.fail(NotFound, attr, err)
		}
		return b.fail(Rejected, attr, err)
	}
	payload := text + "\n"
	n, err := f.WriteString(payload)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return b.fail(Rejected, attr, err)
	}
	if n != len(payload) {
		return b.fail(Rejected, attr, errors.Errorf("short write: %d of %d bytes", n, len(payload)))
	}
	b.logger.Debugw("attribute written", "attribute", attr, "path", path, "value", text)
	return nil
}

// Get reads an attribute back from the driver.
func (b *AttributeFileBackend) Get(ctx context.Context, attr Attribute) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, b.fail(Rejected, attr, err)
	}
	path, err := b.path(attr)
	if err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return 0, b.fail(NotFound, attr, err)
		}
		return 0, b.fail(Rejected, attr, err)
	}
	text := strings.TrimSpace(string(raw))
	if attr == Mode {
		value, ok := ParseMode(text)
		if !ok {
			return 0, b.fail(Rejected, attr, errors.Errorf("unknown mode %q", text))
		}
		return value, nil
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, b.fail(Rejected, attr, errors.Wrapf(err, "parsing %s", path))
	}
	return value, nil
}

// Stats returns the contents of the read-only stats attribute, e.g. "Status Flags: 0x2".
func (b *AttributeFileBackend) Stats(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(b.BaseDir, statsFile))
	if err != nil {
		return "", errors.Wrap(err, "reading driver stats")
	}
	return strings.TrimSpace(string(raw)), nil
}
