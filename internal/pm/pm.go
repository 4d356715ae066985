// Package pm implements the Package-Manager Adapter: detecting
// which package manager governs a directory, invoking its install/pack/
// publish behavior, and reading/writing its manifest idiom while preserving
// field order and formatting.
package pm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-slug"

	"github.com/pkglab/pkglab/internal/log"
)

// Kind identifies the package manager governing a directory.
type Kind string

const (
	KindNPM  Kind = "npm"
	KindYarn Kind = "yarn"
	KindPNPM Kind = "pnpm"
	KindBun  Kind = "bun"
)

// lockfileProbe lists, in probe order, the lockfile name unique to each
// supported manager. The order matters: pnpm/yarn/bun users occasionally
// also carry a stray package-lock.json from an earlier npm install, so the
// more specific lockfiles are probed first.
var lockfileProbe = []struct {
	file string
	kind Kind
}{
	{"pnpm-lock.yaml", KindPNPM},
	{"yarn.lock", KindYarn},
	{"bun.lockb", KindBun},
	{"package-lock.json", KindNPM},
}

// Detect probes dir for a recognized lockfile and returns the governing
// package manager. Defaults to npm if none is found (a package with no
// lockfile yet is still npm-governed until one is generated).
func Detect(dir string) Kind {
	for _, p := range lockfileProbe {
		if _, err := os.Stat(filepath.Join(dir, p.file)); err == nil {
			return p.kind
		}
	}
	return KindNPM
}

func (k Kind) binary() string {
	return string(k)
}

// LockfileName returns the lockfile basename kind generates, or "" for an
// unrecognized kind.
func LockfileName(kind Kind) string {
	for _, p := range lockfileProbe {
		if p.kind == kind {
			return p.file
		}
	}
	return ""
}

// WriteAuthToken writes the local registry's fixed dummy token into dir's
// package-manager config, scoped to the registry's own host so it never
// leaks to any other registry the consumer might use. npm/yarn/pnpm/bun
// all honor a per-host auth line in .npmrc.
func WriteAuthToken(dir string, kind Kind, registryURL, token string) error {
	if token == "" || registryURL == "" {
		return nil
	}
	host := hostOf(registryURL)
	line := fmt.Sprintf("//%s/:_authToken=%s\n", host, token)

	path := filepath.Join(dir, ".npmrc")
	existing, err := os.ReadFile(path) //nolint:gosec // G304: fixed filename within a known consumer directory
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if bytes.Contains(existing, []byte(line)) {
		return nil
	}
	out := append(append([]byte{}, existing...), []byte(line)...)
	return WriteFileAtomic(path, out)
}

// Install runs the package manager's install command in dir.
func Install(ctx context.Context, kind Kind, dir string) error {
	return run(ctx, kind, dir, "install")
}

// Publish publishes tarball to registryURL using the fixed local dummy
// token, via the package manager's own publish subcommand.
func Publish(ctx context.Context, kind Kind, tarball, registryURL, token string) error {
	dir := filepath.Dir(tarball)
	args := []string{"publish", tarball, "--registry", registryURL}
	if token != "" {
		args = append(args, fmt.Sprintf("--//%s/:_authToken=%s", hostOf(registryURL), token))
	}
	return run(ctx, kind, dir, args...)
}

func hostOf(registryURL string) string {
	u := registryURL
	for _, prefix := range []string{"https://", "http://"} {
		if len(u) > len(prefix) && u[:len(prefix)] == prefix {
			u = u[len(prefix):]
			break
		}
	}
	return u
}

func run(ctx context.Context, kind Kind, dir string, args ...string) error {
	//nolint:gosec // G204: kind is one of a fixed enum, args are built internally
	cmd := exec.CommandContext(ctx, kind.binary(), args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug(log.CatPM, "running package manager command", "kind", kind, "dir", dir, "args", args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w: %s", kind, args, err, stderr.String())
	}
	return nil
}

// Pack builds a gzipped tarball of dir's tracked files (per TrackedFiles)
// and returns the path to the resulting archive, which the caller must
// remove when done. Packing is delegated to hashicorp/go-slug, the same
// library Terraform Cloud uses to build registry-upload slugs: pkglab
// stages only the tracked files into a scratch directory first (so the
// ignore decision is made once, in one place, shared with the
// Fingerprinter) and lets the Packer handle the tar+gzip construction and
// symlink-safety checks.
func Pack(dir string) (string, error) {
	files, err := TrackedFiles(dir)
	if err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp("", "pkglab-stage-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	for _, rel := range files {
		src := filepath.Join(dir, rel)
		dst := filepath.Join(staging, rel)
		if err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("staging %s: %w", rel, err)
		}
	}

	out, err := os.CreateTemp("", fmt.Sprintf("pkglab-pack-%s-*.tgz", uuid.NewString()))
	if err != nil {
		return "", err
	}
	defer out.Close()

	packer, err := slug.NewPacker(slug.DereferenceSymlinks())
	if err != nil {
		return "", err
	}
	if _, err := packer.Pack(staging, out); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(src) //nolint:gosec // G304: src comes from a tracked-files walk under a known package dir
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
