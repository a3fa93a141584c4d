/*
Copyright 2025 Paradrop Labs
*/

package files

import (
	"io"
	"text/template"
)

// WriteTemplate applies conf to a template and writes the result to the
// path indicated.
func WriteTemplate(path string, tpl *template.Template, conf interface{}) error {
	return WriteConfig(func(w io.Writer, v interface{}) error {
		return tpl.Execute(w, v)
	}, path, conf)
}
