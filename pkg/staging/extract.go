/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package staging

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var errCorruptArchive = errors.New("corrupt or unreadable archive")

var zipMagic = []byte("PK\x03\x04")

// isArchive reports whether a path should be unpacked rather than
// treated as evidence.
func isArchive(path string) bool {
	lower := strings.ToLower(path)

	switch {
	case strings.HasSuffix(lower, ".zip"),
		strings.HasSuffix(lower, ".tar"),
		strings.HasSuffix(lower, ".tar.gz"),
		strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".gz"):
		return true
	}

	// Extension can lie; a zip delivered as .bin still unpacks.
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}

	return bytes.Equal(head, zipMagic)
}

// extract unpacks one archive into destDir. Every member is written as
// "<archive name>_<member name>" so provenance survives arbitrary
// nesting; the caller removes the archive afterwards and recurses on
// anything extracted that is itself an archive.
func extract(path, destDir string) ([]string, error) {
	lower := strings.ToLower(path)
	prefix := sanitizeName(filepath.Base(path)) + "_"

	switch {
	case strings.HasSuffix(lower, ".tar"):
		return extractTar(path, destDir, prefix, false)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTar(path, destDir, prefix, true)
	case strings.HasSuffix(lower, ".gz"):
		return extractGzip(path, destDir, prefix)
	default:
		return extractZip(path, destDir, prefix)
	}
}

func extractZip(path, destDir, prefix string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", errCorruptArchive, filepath.Base(path), err)
	}
	defer r.Close()

	var out []string

	for _, member := range r.File {
		if member.FileInfo().IsDir() {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			return out, fmt.Errorf("%w: %s: %s", errCorruptArchive, member.Name, err)
		}

		dest := filepath.Join(destDir, prefix+sanitizeName(member.Name))

		if err := writeMember(dest, rc); err != nil {
			rc.Close()
			return out, err
		}

		rc.Close()
		out = append(out, dest)
	}

	return out, nil
}

func extractTar(path, destDir, prefix string, gzipped bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", errCorruptArchive, filepath.Base(path), err)
	}
	defer f.Close()

	var src io.Reader = f

	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", errCorruptArchive, filepath.Base(path), err)
		}
		defer gz.Close()

		src = gz
	}

	tr := tar.NewReader(src)

	var out []string

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return out, fmt.Errorf("%w: %s: %s", errCorruptArchive, filepath.Base(path), err)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dest := filepath.Join(destDir, prefix+sanitizeName(hdr.Name))

		if err := writeMember(dest, tr); err != nil {
			return out, err
		}

		out = append(out, dest)
	}
}

func extractGzip(path, destDir, prefix string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", errCorruptArchive, filepath.Base(path), err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", errCorruptArchive, filepath.Base(path), err)
	}
	defer gz.Close()

	// foo.log.gz unpacks to <prefix minus .gz suffix>; the prefix
	// already carries the archive name, so trim the trailing "_".
	name := strings.TrimSuffix(strings.TrimSuffix(prefix, "_"), ".gz")
	dest := filepath.Join(destDir, name)

	if err := writeMember(dest, gz); err != nil {
		return nil, err
	}

	return []string{dest}, nil
}

// sanitizeName flattens member paths into a single filename component,
// discarding any traversal elements.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	parts := strings.Split(name, "/")

	var kept []string

	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}

		kept = append(kept, p)
	}

	return strings.Join(kept, "_")
}

func writeMember(dest string, src io.Reader) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create extracted file: %w", err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to write extracted file: %w", err)
	}

	return out.Close()
}
