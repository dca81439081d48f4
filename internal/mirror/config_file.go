package mirror

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// DecodeFile decodes a configuration file into c. Files ending in .yaml or
// .yml are YAML, anything else is TOML.
//
// For TOML the keys that match no field are returned so the caller can
// report them. YAML rejects unknown keys while decoding.
func (c *Config) DecodeFile(p string) ([]toml.Key, error) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return nil, c.decodeYAML(p)
	}

	md, err := toml.DecodeFile(p, c)
	if err != nil {
		return nil, err
	}
	return md.Undecoded(), nil
}

func (c *Config) decodeYAML(p string) error {
	data, err := os.ReadFile(p) // #nosec G304 - operator supplied config path
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err = dec.Decode(c)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "parsing config file %s", p)
	}
	return nil
}
