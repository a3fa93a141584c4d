/*
Copyright 2025 Paradrop Labs
*/

package files

import (
	"encoding/json"
	"io"
)

// EncodeJSON encodes object to writer.
func EncodeJSON(f io.Writer, v interface{}) error {
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DecodeJSON decodes object from reader.
func DecodeJSON(f io.Reader, v interface{}) error {
	return json.NewDecoder(f).Decode(v)
}

// WriteJSONConfig marshals an object to JSON at the path indicated.
func WriteJSONConfig(path string, conf interface{}) error {
	return WriteConfig(EncodeJSON, path, conf)
}

// ReadJSONConfig unmarshals a JSON encoded object from the specified file.
func ReadJSONConfig(path string, conf interface{}) error {
	return ReadConfig(DecodeJSON, path, conf)
}
