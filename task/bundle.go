/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// SchemaVersion is the bundle wire format version written by this
	// package. Readers reject any other version.
	SchemaVersion = 1

	// FileName is the name of the bundle inside the task data directory.
	FileName = "task_data.json"

	consumedSuffix = ".consumed"
)

var (
	// ErrBundleExists is returned when a bundle was already written to the
	// task data directory.
	ErrBundleExists = errors.New("task bundle already written")

	// ErrBundleConsumed is returned when the bundle was already consumed by
	// an earlier finalize run.
	ErrBundleConsumed = errors.New("task bundle already consumed")
)

// RerenderResults are the renderer outputs, passed through unchanged.
type RerenderResults struct {
	Changed       bool   `json:"changed"`
	RerenderError bool   `json:"rerender_error"`
	InfoMessage   string `json:"info_message,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
}

// LintResults are the linter outputs. Lints and Hints are nil when the
// linter failed to run.
type LintResults struct {
	LintError bool     `json:"lint_error"`
	Lints     []string `json:"lints"`
	Hints     []string `json:"hints"`
}

// Bundle is the Result Bundle produced once by the run phase and consumed
// once by the finalize phase. Exactly one of Rerender and Lint is set,
// matching Kind.
type Bundle struct {
	Version  int
	Kind     Kind
	Repo     string
	PRNumber int
	// HeadSHA is the pull request head commit the run phase executed
	// against.
	HeadSHA string

	Rerender *RerenderResults
	Lint     *LintResults
}

type wireBundle struct {
	Version  int             `json:"version"`
	Task     Kind            `json:"task"`
	Repo     string          `json:"repo"`
	PRNumber int             `json:"pr_number"`
	HeadSHA  string          `json:"head_sha,omitempty"`
	Results  json.RawMessage `json:"task_results"`
}

// NewRerenderBundle builds a rerender bundle for d.
func NewRerenderBundle(d Descriptor, headSHA string, res RerenderResults) *Bundle {
	return &Bundle{
		Version:  SchemaVersion,
		Kind:     KindRerender,
		Repo:     d.Repo,
		PRNumber: d.PRNumber,
		HeadSHA:  headSHA,
		Rerender: &res,
	}
}

// NewLintBundle builds a lint bundle for d.
func NewLintBundle(d Descriptor, headSHA string, res LintResults) *Bundle {
	return &Bundle{
		Version:  SchemaVersion,
		Kind:     KindLint,
		Repo:     d.Repo,
		PRNumber: d.PRNumber,
		HeadSHA:  headSHA,
		Lint:     &res,
	}
}

// Descriptor reconstructs the run descriptor for a bundle read from dataDir.
func (b *Bundle) Descriptor(dataDir string) Descriptor {
	return Descriptor{
		Kind:     b.Kind,
		Repo:     b.Repo,
		PRNumber: b.PRNumber,
		DataDir:  dataDir,
	}
}

// Validate checks the bundle is well formed for its kind.
func (b *Bundle) Validate() error {
	if b.Version != SchemaVersion {
		return fmt.Errorf("unsupported bundle version %d (want %d)", b.Version, SchemaVersion)
	}
	if err := b.Descriptor("").Validate(); err != nil {
		return err
	}
	switch b.Kind {
	case KindRerender:
		if b.Rerender == nil || b.Lint != nil {
			return errors.New("rerender bundle must carry only rerender results")
		}
	case KindLint:
		if b.Lint == nil || b.Rerender != nil {
			return errors.New("lint bundle must carry only lint results")
		}
	}
	return nil
}

// Results returns the kind specific results as a value suitable for logging.
func (b *Bundle) Results() any {
	if b.Kind == KindRerender {
		return b.Rerender
	}
	return b.Lint
}

// MarshalJSON implements json.Marshaler.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	results, err := json.Marshal(b.Results())
	if err != nil {
		return nil, fmt.Errorf("marshaling task results: %w", err)
	}
	return json.Marshal(wireBundle{
		Version:  b.Version,
		Task:     b.Kind,
		Repo:     b.Repo,
		PRNumber: b.PRNumber,
		HeadSHA:  b.HeadSHA,
		Results:  results,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var w wireBundle
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := ParseKind(string(w.Task))
	if err != nil {
		return err
	}
	if len(w.Results) == 0 {
		return errors.New("task_results missing")
	}

	*b = Bundle{
		Version:  w.Version,
		Kind:     kind,
		Repo:     w.Repo,
		PRNumber: w.PRNumber,
		HeadSHA:  w.HeadSHA,
	}
	switch kind {
	case KindRerender:
		b.Rerender = &RerenderResults{}
		err = json.Unmarshal(w.Results, b.Rerender)
	case KindLint:
		b.Lint = &LintResults{}
		err = json.Unmarshal(w.Results, b.Lint)
	}
	if err != nil {
		return fmt.Errorf("decoding %s results: %w", kind, err)
	}
	return nil
}

// Write persists b into dir. The write is atomic: the bundle is written to a
// temporary file which is then hard linked into place, so a reader never
// observes a partial bundle and a second writer fails with ErrBundleExists.
func Write(dir string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path + consumedSuffix); err == nil {
		return fmt.Errorf("%s: %w", path, ErrBundleExists)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bundle: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating task data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".task_data-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrBundleExists)
		}
		return fmt.Errorf("publishing bundle: %w", err)
	}
	return nil
}

// Read decodes the bundle in dir without consuming it.
func Read(dir string) (*Bundle, error) {
	return readFile(filepath.Join(dir, FileName))
}

// Consume claims the bundle in dir and decodes it. Claiming renames the
// bundle aside, so a later Consume of the same directory fails with
// ErrBundleConsumed.
func Consume(dir string) (*Bundle, error) {
	path := filepath.Join(dir, FileName)
	claimed := path + consumedSuffix

	if err := os.Link(path, claimed); err != nil {
		switch {
		case errors.Is(err, fs.ErrExist):
			return nil, fmt.Errorf("%s: %w", path, ErrBundleConsumed)
		case errors.Is(err, fs.ErrNotExist):
			if _, serr := os.Stat(claimed); serr == nil {
				return nil, fmt.Errorf("%s: %w", path, ErrBundleConsumed)
			}
			return nil, fmt.Errorf("reading bundle: %w", err)
		default:
			return nil, fmt.Errorf("claiming bundle: %w", err)
		}
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("claiming bundle: %w", err)
	}

	return readFile(claimed)
}

func readFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding bundle %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle %s: %w", path, err)
	}
	return &b, nil
}
