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

// Package rules assembles multiple upstream rule collections into one
// immutable, content-addressed corpus directory for the detection
// engine. Workers reference a corpus by version; a half-built corpus is
// never visible because the build lands in a temp directory and is
// renamed into place atomically.
package rules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
)

// Manifest describes one built corpus.
type Manifest struct {
	Version   string    `yaml:"version"`
	BuiltAt   time.Time `yaml:"built_at"`
	Sources   []Source  `yaml:"sources"`
	RuleCount int       `yaml:"rule_count"`
}

// Source is one upstream rule collection that fed the corpus.
type Source struct {
	Path   string `yaml:"path"`
	Digest string `yaml:"digest"`
	Files  int    `yaml:"files"`
}

// Builder assembles corpora under a root directory.
type Builder struct {
	root   string
	logger logger.Logger
}

// NewBuilder creates a Builder writing under root.
func NewBuilder(root string, log logger.Logger) *Builder {
	return &Builder{root: root, logger: log}
}

// CorpusDir returns the directory for a corpus version.
func (b *Builder) CorpusDir(version string) string {
	return filepath.Join(b.root, "corpus-"+version)
}

// Build unions the rule files of all sources into a version-addressed
// corpus directory and returns its manifest. Building the same inputs
// twice converges on the same directory, so concurrent rebuilds cannot
// race each other into a torn state.
func (b *Builder) Build(ctx context.Context, sourceDirs []string) (*Manifest, error) {
	sources := make([]Source, 0, len(sourceDirs))

	var ruleFiles []ruleFile

	for _, dir := range sourceDirs {
		src, files, err := collectSource(ctx, dir)
		if err != nil {
			return nil, err
		}

		sources = append(sources, *src)
		ruleFiles = append(ruleFiles, files...)
	}

	version := corpusVersion(sources)
	finalDir := b.CorpusDir(version)

	if _, err := os.Stat(finalDir); err == nil {
		// Same inputs already built; reuse the immutable artifact.
		b.logger.Debug().Str("version", version).Msg("Rule corpus already built")
		return readManifest(finalDir)
	}

	tmpDir, err := os.MkdirTemp(b.root, "corpus-build-")
	if err != nil {
		return nil, fmt.Errorf("failed to create corpus build dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	for _, rf := range ruleFiles {
		if err := copyRule(rf, tmpDir); err != nil {
			return nil, err
		}
	}

	manifest := &Manifest{
		Version:   version,
		BuiltAt:   time.Now().UTC(),
		Sources:   sources,
		RuleCount: len(ruleFiles),
	}

	if err := writeManifest(tmpDir, manifest); err != nil {
		return nil, err
	}

	if err := os.Rename(tmpDir, finalDir); err != nil {
		// A concurrent build won the rename; its content is identical.
		if _, statErr := os.Stat(finalDir); statErr == nil {
			return readManifest(finalDir)
		}

		return nil, fmt.Errorf("failed to publish corpus: %w", err)
	}

	b.logger.Info().
		Str("version", version).
		Int("rules", len(ruleFiles)).
		Msg("Rule corpus built")

	return manifest, nil
}

type ruleFile struct {
	sourceDir string
	relPath   string
	absPath   string
}

func collectSource(ctx context.Context, dir string) (*Source, []ruleFile, error) {
	src := &Source{Path: dir}
	digest := sha256.New()

	var files []ruleFile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() || !isRuleFile(path) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		files = append(files, ruleFile{sourceDir: dir, relPath: rel, absPath: path})

		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk rule source %s: %w", dir, err)
	}

	// Digest in a stable order so the version is deterministic.
	sort.Slice(files, func(i, j int) bool { return files[i].relPath < files[j].relPath })

	for _, rf := range files {
		fileDigest, err := digestFile(rf.absPath)
		if err != nil {
			return nil, nil, err
		}

		fmt.Fprintf(digest, "%s\x00%s\x00", rf.relPath, fileDigest)
	}

	src.Digest = hex.EncodeToString(digest.Sum(nil))
	src.Files = len(files)

	return src, files, nil
}

func isRuleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	}

	return false
}

// corpusVersion derives the corpus id from its constituent source
// digests, sorted so source ordering cannot change the version.
func corpusVersion(sources []Source) string {
	digests := make([]string, 0, len(sources))
	for _, s := range sources {
		digests = append(digests, s.Digest)
	}

	sort.Strings(digests)

	h := sha256.New()
	for _, d := range digests {
		fmt.Fprintf(h, "%s\x00", d)
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func copyRule(rf ruleFile, destDir string) error {
	// Source directory base prefixes the flattened name so rules with
	// the same relative path in two collections cannot clobber each
	// other.
	name := filepath.Base(rf.sourceDir) + "_" + strings.ReplaceAll(rf.relPath, string(filepath.Separator), "_")
	dest := filepath.Join(destDir, name)

	in, err := os.Open(rf.absPath)
	if err != nil {
		return fmt.Errorf("failed to open rule %s: %w", rf.absPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create rule copy: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy rule: %w", err)
	}

	return out.Close()
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

const manifestName = "manifest.yaml"

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus manifest: %w", err)
	}

	var m Manifest

	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse corpus manifest: %w", err)
	}

	return &m, nil
}
