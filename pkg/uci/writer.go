/*
Copyright 2025 Paradrop Labs
*/

package uci

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Format writes the collection back out in config-file form. Sections keep
// insertion order; explicitly set options are emitted, defaults are not.
func Format(w io.Writer, c *Collection) error {
	bw := bufio.NewWriter(w)
	for i, s := range c.All() {
		if i > 0 {
			fmt.Fprintln(bw)
		}
		if s.Anonymous {
			fmt.Fprintf(bw, "config %s\n", s.Type)
		} else {
			fmt.Fprintf(bw, "config %s %s\n", s.Type, s.Name)
		}
		scalars, lists := s.optionNames()
		for _, k := range scalars {
			fmt.Fprintf(bw, "    option %s '%s'\n", k, s.values[k])
		}
		for _, k := range lists {
			for _, v := range s.lists[k] {
				fmt.Fprintf(bw, "    list %s '%s'\n", k, v)
			}
		}
	}
	return bw.Flush()
}

// WriteFile formats the collection to the named file, replacing any
// previous contents.
func WriteFile(path string, c *Collection) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create config file")
	}
	defer f.Close()
	if err := Format(f, c); err != nil {
		return err
	}
	return f.Close()
}
