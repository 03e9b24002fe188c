package standard

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/relaykit/kernel/tool"
)

// FileReadTool reads a file's contents. Input is a path relative to root.
type FileReadTool struct {
	root        string
	maxFileSize int64
}

// NewFileReadTool builds a FileReadTool rooted at root.
func NewFileReadTool(root string, maxFileSize int64) *FileReadTool {
	return &FileReadTool{root: root, maxFileSize: maxFileSize}
}

func (t *FileReadTool) Name() tool.Name { return tool.Std(tool.FileRead) }

// Path returns the input path unresolved; the dispatcher's security
// manager resolves and validates it against policy before Call ever opens
// the file (spec §4.3 step 4, and the path-traversal-blocked E2E scenario).
func (t *FileReadTool) Path(input string) (string, error) { return input, nil }

func (t *FileReadTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	full := filepath.Join(t.root, input)

	info, err := os.Stat(full)
	if err != nil {
		return errResult(started, "stat failed: "+err.Error())
	}
	if t.maxFileSize > 0 && info.Size() > t.maxFileSize {
		return errResult(started, "file exceeds max_file_size")
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return errResult(started, "read failed: "+err.Error())
	}
	return tool.ExecutionResult{Success: true, Output: string(data), DurationMS: time.Since(started).Milliseconds()}
}

// FileWriteTool writes a file's contents. Input is "<path>\n<content>".
type FileWriteTool struct {
	root        string
	maxFileSize int64
}

// NewFileWriteTool builds a FileWriteTool rooted at root, directly
// generalizing the teacher's FileWriterTool: same split-on-path/content
// shape, same directory-creation-on-write behavior, minus the .bak backup
// (the kernel's dispatch pipeline already validates the path, so the tool
// itself carries no policy logic of its own).
func NewFileWriteTool(root string, maxFileSize int64) *FileWriteTool {
	return &FileWriteTool{root: root, maxFileSize: maxFileSize}
}

func (t *FileWriteTool) Name() tool.Name { return tool.Std(tool.FileWrite) }

func (t *FileWriteTool) Path(input string) (string, error) {
	path, _, _ := splitURLBody(input)
	return path, nil
}

func (t *FileWriteTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	path, content, _ := splitURLBody(input)
	if path == "" {
		return errResult(started, "path is required")
	}
	if t.maxFileSize > 0 && int64(len(content)) > t.maxFileSize {
		return errResult(started, "content exceeds max_file_size")
	}

	full := filepath.Join(t.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errResult(started, "failed to create directory: "+err.Error())
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return errResult(started, "write failed: "+err.Error())
	}
	return tool.ExecutionResult{Success: true, Output: "wrote " + strconv.Itoa(len(content)) + " bytes to " + path, DurationMS: time.Since(started).Milliseconds()}
}

// FileListTool lists directory entries. Input is a directory path relative
// to root.
type FileListTool struct {
	root string
}

// NewFileListTool builds a FileListTool rooted at root.
func NewFileListTool(root string) *FileListTool {
	return &FileListTool{root: root}
}

func (t *FileListTool) Name() tool.Name { return tool.Std(tool.FileList) }

func (t *FileListTool) Path(input string) (string, error) { return input, nil }

func (t *FileListTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	full := filepath.Join(t.root, input)

	entries, err := os.ReadDir(full)
	if err != nil {
		return errResult(started, "list failed: "+err.Error())
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return tool.ExecutionResult{Success: true, Output: strings.Join(names, "\n"), DurationMS: time.Since(started).Milliseconds()}
}
