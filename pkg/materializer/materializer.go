// Package materializer implements the per-space artifact builder (spec.md
// §4.8, C8): turning a resolved space snapshot into a cacheable,
// harness-ready directory of linked (or copied) components plus a
// generated plugin manifest. Grounded on the teacher's afero-based
// bundle manager (pkg/bundle/manager), generalized from "install+render a
// downloaded bundle" to "link a snapshot's components into a cache slot".
package materializer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"asp/internal/aspconfig"
	"asp/internal/asperr"
	"asp/internal/stage"
	"asp/pkg/manifest"
)

// Input describes one space's materialization request (spec.md §4.8).
type Input struct {
	SpaceKey        string
	Manifest        *manifest.SpaceManifest
	SnapshotPath    string
	Integrity       string
	HarnessID       string
	HarnessEnvHash  string
	UseHardlinks    bool
	Force           bool
}

// Result is the outcome of a materialization.
type Result struct {
	ArtifactPath string
	Files        []string
	Warnings     []string
}

// componentDirs are the well-known per-space component subdirectories
// linked into every harness artifact (spec.md §4.8 step 3).
var componentDirs = []string{"commands", "skills", "agents", "hooks", "mcp"}

// PluginManifest is the generated plugin.json (or harness-equivalent)
// written into every materialized artifact (spec.md §4.8).
type PluginManifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Homepage    string   `json:"homepage,omitempty"`
	Repository  string   `json:"repository,omitempty"`
	License     string   `json:"license,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// DerivePluginIdentity computes name/version per spec.md §4.8's
// deterministic derivation rule.
func DerivePluginIdentity(m *manifest.SpaceManifest, spaceID string) PluginManifest {
	name := m.Plugin.Name
	if name == "" {
		name = spaceID
	}
	version := m.Plugin.Version
	if version == "" {
		version = m.Version
	}
	return PluginManifest{
		Name:        name,
		Version:     version,
		Description: m.Plugin.Description,
		Author:      m.Plugin.Author,
		Homepage:    m.Plugin.Homepage,
		Repository:  m.Plugin.Repository,
		License:     m.Plugin.License,
		Keywords:    m.Plugin.Keywords,
	}
}

// Materializer builds per-space artifacts under one ASP_HOME's cache dir.
type Materializer struct {
	aspHome string
	fs      afero.Fs
}

// New returns a Materializer rooted at aspHome. A nil fs defaults to the
// real filesystem.
func New(aspHome string, fs afero.Fs) *Materializer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Materializer{aspHome: aspHome, fs: fs}
}

// CacheKey computes `<harnessId>/<harness-env-hash>/<integrity-hex>/<plugin-name>-<plugin-version>`
// (spec.md §4.8 step 1).
func CacheKey(harnessID, harnessEnvHash, integrityHex, pluginName, pluginVersion string) string {
	return filepath.Join(harnessID, harnessEnvHash, integrityHex, fmt.Sprintf("%s-%s", pluginName, pluginVersion))
}

// Materialize builds (or reuses) the per-space artifact for in.
func (mz *Materializer) Materialize(in Input) (Result, error) {
	identity := DerivePluginIdentity(in.Manifest, in.Manifest.ID)
	integrityHex := stripIntegrityPrefix(in.Integrity)
	cacheKey := CacheKey(in.HarnessID, in.HarnessEnvHash, integrityHex, identity.Name, identity.Version)
	finalDir := filepath.Join(aspconfig.CacheDir(mz.aspHome), cacheKey)

	if !in.Force {
		if info, err := mz.fs.Stat(finalDir); err == nil && info.IsDir() {
			files, warnings, err := mz.describeExisting(finalDir)
			if err != nil {
				return Result{}, asperr.MaterializationError(in.SpaceKey, err)
			}
			return Result{ArtifactPath: finalDir, Files: files, Warnings: warnings}, nil
		}
	}

	var warnings []string
	err := stage.WriteOnce(aspconfig.TmpDir(mz.aspHome), finalDir, func(stageDir string) error {
		manifestBytes, err := json.MarshalIndent(identity, "", "  ")
		if err != nil {
			return err
		}
		if err := afero.WriteFile(mz.fs, filepath.Join(stageDir, "plugin.json"), manifestBytes, 0o644); err != nil {
			return err
		}

		for _, dir := range componentDirs {
			srcDir := filepath.Join(in.SnapshotPath, dir)
			info, statErr := mz.fs.Stat(srcDir)
			if statErr != nil || !info.IsDir() {
				continue
			}
			dstDir := filepath.Join(stageDir, dir)
			if err := mz.linkOrCopyDir(srcDir, dstDir, in.UseHardlinks); err != nil {
				return err
			}
			if dir == "hooks" {
				w, err := translateHooks(mz.fs, dstDir)
				if err != nil {
					return err
				}
				warnings = append(warnings, w...)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, asperr.MaterializationError(in.SpaceKey, err)
	}

	files, _, err := mz.describeExisting(finalDir)
	if err != nil {
		return Result{}, asperr.MaterializationError(in.SpaceKey, err)
	}
	return Result{ArtifactPath: finalDir, Files: files, Warnings: warnings}, nil
}

func stripIntegrityPrefix(integrity string) string {
	const prefix = "sha256:"
	if len(integrity) > len(prefix) && integrity[:len(prefix)] == prefix {
		return integrity[len(prefix):]
	}
	return integrity
}

func (mz *Materializer) describeExisting(dir string) (files []string, warnings []string, err error) {
	walkErr := afero.Walk(mz.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return relErr
			}
			files = append(files, rel)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("failed to describe %s: %w", dir, walkErr)
	}
	return files, nil, nil
}

// linkOrCopyDir mirrors srcDir's files into dstDir, hardlinking when
// useHardlinks is true and the underlying fs is a real OS filesystem,
// falling back to copy otherwise (e.g. cross-device, afero.MemMapFs, or
// useHardlinks=false to protect a dev/project source in place).
func (mz *Materializer) linkOrCopyDir(srcDir, dstDir string, useHardlinks bool) error {
	_, isOsFs := mz.fs.(*afero.OsFs)
	isHooksDir := filepath.Base(srcDir) == "hooks"
	return afero.Walk(mz.fs, srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dstDir, rel)
		if info.IsDir() {
			return mz.fs.MkdirAll(dstPath, 0o755)
		}

		if err := mz.fs.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}

		linked := false
		if useHardlinks && isOsFs {
			if err := os.Link(path, dstPath); err == nil {
				linked = true
			}
			// cross-device or unsupported; fall through to copy.
		}
		if !linked {
			if err := copyFile(mz.fs, path, dstPath, info.Mode()); err != nil {
				return err
			}
		}

		if isHooksDir && isScriptFile(rel) {
			return ensureExecutable(mz.fs, dstPath, info.Mode())
		}
		return nil
	})
}

// isScriptFile reports whether a hooks/ file looks like a declared script
// rather than the hooks.toml/hooks.json descriptor itself.
func isScriptFile(rel string) bool {
	base := filepath.Base(rel)
	return base != "hooks.toml" && base != "hooks.json"
}

// ensureExecutable chmods a hook script's user/group/other execute bits on
// if they are not already set (spec.md §4.8 step 3).
func ensureExecutable(fs afero.Fs, path string, mode os.FileMode) error {
	if mode&0o111 == 0o111 {
		return nil
	}
	return fs.Chmod(path, mode|0o111)
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
