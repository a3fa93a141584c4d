/*
Copyright 2025 Paradrop Labs
*/

// Package files writes and reads the agent's derived configuration
// artifacts through pluggable encoders.
package files

import (
	"bufio"
	"io"
	"os"
)

type encoder func(io.Writer, interface{}) error
type decoder func(io.Reader, interface{}) error

// WriteConfig encodes an object to the specified file.
func WriteConfig(enc encoder, path string, conf interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := enc(w, conf); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ReadConfig decodes an object from the specified file.
func ReadConfig(dec decoder, path string, conf interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return dec(f, conf)
}
