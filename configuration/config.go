package configuration

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownFormat config file extension is neither yaml nor toml
	ErrUnknownFormat = errors.New("config: unknown file format")

	validate = validator.New()
)

// DefaultConfig Load minimum working configuration to allow
// server start without user provided one
func DefaultConfig() *Config {
	c := Config{}
	if err := yaml.Unmarshal(defaultConfig, &c); err != nil {
		panic(err.Error())
	}

	return &c
}

// DefaultConfigText embedded default config as shipped
func DefaultConfigText() string {
	return string(defaultConfig)
}

// ReadConfig read service configuration.
// Content of the file overrides defaults, keys omitted in the file keep default values.
// Empty path returns validated defaults
func ReadConfig(file string) (*Config, error) {
	log := GetHumanLogger()

	c := DefaultConfig()

	if len(file) == 0 {
		log.Info("No config file provided. use --config option or " + EnvConfig + " environment variable to provide own")
		log.Debug("default config: \n", string(defaultConfig))
	} else {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "config: read")
		}

		if err = Decode(filepath.Ext(file), data, c); err != nil {
			return nil, errors.Wrapf(err, "config: decode %s", file)
		}

		log.Infow("loaded config", "file", file)
	}

	if err := Validate(c); err != nil {
		return nil, err
	}

	return c, nil
}

// Decode unmarshal data into c using format selected by file extension
func Decode(ext string, data []byte, c *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return err
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return errors.Errorf("unknown key %q", undecoded[0].String())
		}
	default:
		return ErrUnknownFormat
	}

	return nil
}

// Validate checks config against constraints declared in struct tags.
// Every violated field is reported
func Validate(c *Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err
	}

	var result *multierror.Error
	for _, e := range vErrs {
		result = multierror.Append(result,
			errors.Errorf("config: %s: failed on '%s' (value: %v)", e.Namespace(), fieldTag(e), e.Value()))
	}

	return result.ErrorOrNil()
}

func fieldTag(e validator.FieldError) string {
	if p := e.Param(); len(p) > 0 {
		return e.Tag() + "=" + p
	}

	return e.Tag()
}
