/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSyncDirs(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]string{
		".git/HEAD":                 "ref: refs/heads/pull/1/head\n",
		"recipe/meta.yaml":          "package: {name: foo}\n",
		".ci_support/linux_64.yaml": "c_compiler: gcc\n",
		"README.md":                 "new readme\n",
	})
	writeTree(t, dst, map[string]string{
		".git/HEAD":                   "ref: refs/heads/my-branch\n",
		"recipe/meta.yaml":            "package: {name: old}\n",
		".ci_support/osx_64.yaml":     "c_compiler: clang\n",
		"stale/nested/file.txt":       "stale\n",
		"README.md":                   "old readme\n",
		".ci_support/migrations/x.md": "gone\n",
	})
	if err := os.Chmod(filepath.Join(src, "README.md"), 0o755); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	if err := SyncDirs(src, dst); err != nil {
		t.Fatalf("SyncDirs: %v", err)
	}

	want := map[string]string{
		".git/HEAD":                 "ref: refs/heads/my-branch\n",
		"recipe/meta.yaml":          "package: {name: foo}\n",
		".ci_support/linux_64.yaml": "c_compiler: gcc\n",
		"README.md":                 "new readme\n",
	}
	if diff := cmp.Diff(want, readTree(t, dst)); diff != "" {
		t.Errorf("dst mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(filepath.Join(dst, "README.md"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o755 {
		t.Errorf("README.md mode: got = %v, wanted = %v", got, os.FileMode(0o755))
	}
}

func TestSyncDirsSymlink(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]string{"build.sh": "#!/bin/sh\n"})
	if err := os.Symlink("build.sh", filepath.Join(src, "bld.sh")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	writeTree(t, dst, map[string]string{"bld.sh": "regular file\n"})

	if err := SyncDirs(src, dst); err != nil {
		t.Fatalf("SyncDirs: %v", err)
	}

	link, err := os.Readlink(filepath.Join(dst, "bld.sh"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if link != "build.sh" {
		t.Errorf("link target: got = %q, wanted = %q", link, "build.sh")
	}
}

func TestSyncDirsMissingSource(t *testing.T) {
	err := SyncDirs(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("SyncDirs: got = %v, wanted = %v", err, os.ErrNotExist)
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	got := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		got[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return got
}
