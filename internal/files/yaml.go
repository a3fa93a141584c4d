/*
Copyright 2025 Paradrop Labs
*/

package files

import (
	"io"

	"gopkg.in/yaml.v3"
)

// EncodeYAML encodes object to writer.
func EncodeYAML(f io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// DecodeYAML decodes object from reader.
func DecodeYAML(f io.Reader, v interface{}) error {
	return yaml.NewDecoder(f).Decode(v)
}

// WriteYAMLConfig marshals an object to YAML at the path indicated.
func WriteYAMLConfig(path string, conf interface{}) error {
	return WriteConfig(EncodeYAML, path, conf)
}

// ReadYAMLConfig unmarshals a YAML encoded object from the specified file.
func ReadYAMLConfig(path string, conf interface{}) error {
	return ReadConfig(DecodeYAML, path, conf)
}
