/*
Copyright 2025 Paradrop Labs
*/

package uci

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseError describes a malformed or schema-invalid configuration. The
// whole parse fails on the first error; there is no partial acceptance.
type ParseError struct {
	File    string
	Line    int
	Type    string
	Name    string
	Option  string
	Message string
}

func (e *ParseError) Error() string {
	loc := fmt.Sprintf("%s:%d", e.File, e.Line)
	if e.Type != "" {
		loc += fmt.Sprintf(" (config %s %s", e.Type, e.Name)
		if e.Option != "" {
			loc += " option " + e.Option
		}
		loc += ")"
	}
	return loc + ": " + e.Message
}

// ParsePath parses a single file, or every file in a directory, into a
// collection. Directory entries are read in lexical order.
func ParsePath(path string) (*Collection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat config path")
	}

	c := NewCollection()
	if !info.IsDir() {
		if err := parseFile(c, path); err != nil {
			return nil, err
		}
		return c, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := parseFile(c, filepath.Join(path, name)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseFile(c *Collection, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config file")
	}
	defer f.Close()

	var (
		cur     *Section
		lineNum int
		anon    = make(map[string]int)
	)

	fail := func(opt, msg string) error {
		pe := &ParseError{File: path, Line: lineNum, Option: opt, Message: msg}
		if cur != nil {
			pe.Type = cur.Type
			pe.Name = cur.Name
		}
		return pe
	}

	finish := func() error {
		if cur == nil {
			return nil
		}
		if err := validate(cur); err != nil {
			return &ParseError{File: path, Line: lineNum, Type: cur.Type,
				Name: cur.Name, Message: err.Error()}
		}
		c.Add(cur)
		cur = nil
		return nil
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := splitLine(line)
		if err != nil {
			return fail("", err.Error())
		}
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "config":
			if err := finish(); err != nil {
				return err
			}
			if len(fields) < 2 || len(fields) > 3 {
				return fail("", "config line requires a type and optional name")
			}
			typ := fields[1]
			name := ""
			if len(fields) == 3 {
				name = fields[2]
			}
			sec, err := NewSection(typ, name)
			if err != nil {
				return fail("", err.Error())
			}
			if name == "" {
				// Anonymous sections get synthesized names in UCI's
				// display convention, numbered per type.
				sec.Name = fmt.Sprintf("@%s[%d]", typ, anon[typ])
				sec.Anonymous = true
				anon[typ]++
			}
			sec.Source = path
			cur = sec

		case "option", "list":
			if cur == nil {
				return fail("", fields[0]+" outside of a config section")
			}
			if len(fields) != 3 {
				return fail("", fields[0]+" line requires a name and a value")
			}
			key, value := fields[1], fields[2]
			schema, _ := SchemaFor(cur.Type)
			opt, known := schema.option(key)
			if fields[0] == "list" {
				if known && opt.Kind != List {
					return fail(key, "scalar option given as list")
				}
				cur.Append(key, value)
			} else if known && opt.Kind == List {
				// UCI tolerates a single "option" assignment to a list.
				cur.Append(key, value)
			} else {
				cur.Set(key, value)
			}

		default:
			return fail("", fmt.Sprintf("unexpected keyword %q", fields[0]))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read config file")
	}
	return finish()
}

// validate checks a completed section against its schema: required options
// must be present (after defaults apply) and scalar kinds must parse.
// Unknown options are preserved but not validated.
func validate(s *Section) error {
	schema, ok := SchemaFor(s.Type)
	if !ok {
		return fmt.Errorf("unrecognized section type %q", s.Type)
	}
	for _, opt := range schema.Options {
		if opt.Required && !s.Has(opt.Name) && opt.Default == "" && opt.DefaultList == nil {
			return fmt.Errorf("missing required option %q", opt.Name)
		}
		if !s.Has(opt.Name) {
			continue
		}
		switch opt.Kind {
		case Int:
			if _, err := strconv.Atoi(s.Get(opt.Name)); err != nil {
				return fmt.Errorf("option %q: expected integer, got %q",
					opt.Name, s.Get(opt.Name))
			}
		case Bool:
			switch s.Get(opt.Name) {
			case "0", "1", "yes", "no", "on", "off", "true", "false":
			default:
				return fmt.Errorf("option %q: expected boolean, got %q",
					opt.Name, s.Get(opt.Name))
			}
		}
	}
	return nil
}

// splitLine tokenizes a config line, honoring single and double quotes.
func splitLine(line string) ([]string, error) {
	var (
		fields []string
		cur    strings.Builder
		quote  rune
		in     bool
	)
	flush := func() {
		if in {
			fields = append(fields, cur.String())
			cur.Reset()
			in = false
		}
	}
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			in = true
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
			in = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return fields, nil
}
