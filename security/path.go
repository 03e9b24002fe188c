package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaykit/kernel/kernelerr"
)

// ValidatePath canonicalizes path and verifies it lies under one of the
// policy's allowed roots and matches none of its deny patterns (spec §4.3
// step 4). This is a direct generalization of the teacher's
// FileWriterTool.validatePath: reject absolute paths, reject ".." segments,
// then require the resolved absolute path to sit under an allowed root.
func (p Policy) ValidatePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", pathDenied("absolute paths are not allowed: " + path)
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return "", pathDenied("path traversal segment detected: " + path)
	}
	for _, deny := range p.FS.DenyPatterns {
		if matched, _ := filepath.Match(deny, path); matched || strings.Contains(path, deny) {
			return "", pathDenied("path matches deny pattern " + deny + ": " + path)
		}
	}

	if len(p.FS.AllowPaths) == 0 {
		return "", pathDenied("no allowed roots configured, deny-by-default: " + path)
	}

	for _, root := range p.FS.AllowPaths {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		absPath, err := filepath.Abs(filepath.Join(root, path))
		if err != nil {
			continue
		}
		if absPath == absRoot || strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
			if err := checkSymlinks(absPath, absRoot, p.FS.AllowSymlinks); err != nil {
				return "", err
			}
			return absPath, nil
		}
	}
	return "", pathDenied("path escapes all allowed roots: " + path)
}

// checkSymlinks enforces the fs policy's symlink rule (spec §3, "symlink
// policy"): unless allowSymlinks is set, reject a path whose final
// component is a symlink, or that resolves (once symlinks are followed)
// outside root, since either case lets an allowed path escape the sandbox
// at open time rather than at ValidatePath time.
func checkSymlinks(absPath, absRoot string, allowSymlinks bool) error {
	if allowSymlinks {
		return nil
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return pathDenied("failed to stat path for symlink check: " + absPath)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return pathDenied("path is a symlink and fs.allow_symlinks is false: " + absPath)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil
	}
	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
		return pathDenied("path resolves outside allowed root via a symlinked ancestor: " + absPath)
	}
	return nil
}

func pathDenied(msg string) error {
	return kernelerr.New(kernelerr.KindPolicy, kernelerr.CodePathDenied, "security", "ValidatePath", msg, nil)
}

// ValidateDomain resolves a domain against the HTTP policy's allow/deny
// lists *before* any TCP connect is attempted (spec §4.3 step 4, and the
// SSRF-blocked scenario in §8).
func (p Policy) ValidateDomain(domain string) error {
	domain = strings.ToLower(domain)
	for _, deny := range p.HTTP.DenyDomains {
		if strings.EqualFold(domain, deny) || strings.HasSuffix(domain, "."+strings.ToLower(deny)) {
			return domainDenied("domain is denylisted: " + domain)
		}
	}
	if len(p.HTTP.AllowDomains) == 0 {
		return domainDenied("no allowed domains configured, deny-by-default: " + domain)
	}
	for _, allow := range p.HTTP.AllowDomains {
		if strings.EqualFold(domain, allow) || strings.HasSuffix(domain, "."+strings.ToLower(allow)) {
			return nil
		}
	}
	return domainDenied("domain not in allowlist: " + domain)
}

func domainDenied(msg string) error {
	return kernelerr.New(kernelerr.KindPolicy, kernelerr.CodeDomainDenied, "security", "ValidateDomain", msg, nil)
}
