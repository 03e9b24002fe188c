package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePathRejectsSiblingDirectoryBypass(t *testing.T) {
	root := t.TempDir()
	sibling := root + "-evil"
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sibling, "secret.txt"), []byte("x"), 0o644))

	p := DefaultPolicy()
	p.FS.AllowPaths = []string{root}

	rel, err := filepath.Rel(root, filepath.Join(sibling, "secret.txt"))
	require.NoError(t, err)

	_, err = p.ValidatePath(rel)
	require.Error(t, err)
}

func TestValidatePathRejectsSymlinkWhenDisallowed(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	link := filepath.Join(root, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	p := DefaultPolicy()
	p.FS.AllowPaths = []string{root}
	p.FS.AllowSymlinks = false

	_, err := p.ValidatePath("link.txt")
	require.Error(t, err)
}

func TestValidatePathAllowsSymlinkWhenAllowed(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	link := filepath.Join(root, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	p := DefaultPolicy()
	p.FS.AllowPaths = []string{root}
	p.FS.AllowSymlinks = true

	_, err := p.ValidatePath("link.txt")
	require.NoError(t, err)
}
