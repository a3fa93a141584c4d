/*
Copyright 2025 Paradrop Labs
*/

package container

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// BuildContext packs a chute source directory into the tar stream the
// engine's build endpoint expects. The directory must contain a
// Dockerfile at its root.
func BuildContext(dir string) (io.Reader, error) {
	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err != nil {
		return nil, errors.Wrap(err, "chute source has no Dockerfile")
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "pack build context")
	}
	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "pack build context")
	}
	return &buf, nil
}
