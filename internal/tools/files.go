package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/security"
)

// File tool names.
const (
	ToolReadFile  = "read_file"
	ToolListFiles = "list_files"
	ToolWriteFile = "write_file"
)

// MaxReadFileSize caps read_file at 500 KB. Larger files blow the model's
// context for no benefit.
const MaxReadFileSize = 500_000

// securityFailure converts a path validation error into the matching result.
func securityFailure(paths *security.Path, path string, err error) Result {
	if errors.Is(err, security.ErrBlockedPattern) {
		return Failure(ErrCodeSecurity,
			"Access denied. This file type is restricted for security reasons.")
	}
	return Failuref(ErrCodeSecurity,
		"Access denied. Path '%s' is not in an allowed directory. Allowed directories: %s",
		path, strings.Join(paths.AllowedDirs(), ", "))
}

// ReadFile returns the contents of a project file to the model.
type ReadFile struct {
	paths  *security.Path
	logger log.Logger
}

// NewReadFile creates the read_file handler over the read-scope validator.
func NewReadFile(paths *security.Path, logger log.Logger) *ReadFile {
	return &ReadFile{paths: paths, logger: logger}
}

func (*ReadFile) Name() string { return ToolReadFile }

func (*ReadFile) Description() string {
	return "Read the contents of a file from the project codebase. " +
		"Use this tool to view source code files, read configuration files, " +
		"inspect templates, and review any text-based file in the project. " +
		"This helps you understand the current implementation before suggesting changes."
}

func (*ReadFile) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"file_path": stringProp("Path to the file relative to project root " +
			`(e.g., "app/tools/create_order.go" or "resources/js/pages/chats/index.tsx")`),
	}, "file_path")
}

func (t *ReadFile) Handle(_ context.Context, args map[string]any) Result {
	filePath := stringArg(args, "file_path")
	t.logger.Info("read_file called", "file_path", filePath)

	if filePath == "" {
		return Failure(ErrCodeValidation, "file_path is required")
	}

	safePath, err := t.paths.Resolve(filePath)
	if err != nil {
		return securityFailure(t.paths, filePath, err)
	}

	file, err := os.Open(safePath) // #nosec G304 - path validated above
	if err != nil {
		if os.IsNotExist(err) {
			return Failuref(ErrCodeNotFound, "File not found: %s", filePath)
		}
		return Failuref(ErrCodeIO, "Failed to read file: %v", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return Failuref(ErrCodeIO, "Failed to read file: %v", err)
	}
	if info.Size() > MaxReadFileSize {
		return Failuref(ErrCodeSecurity,
			"File too large (%d bytes). Maximum size is 500KB. "+
				"Consider reading a smaller file or specific sections.", info.Size())
	}

	content, err := io.ReadAll(io.LimitReader(file, MaxReadFileSize))
	if err != nil {
		return Failuref(ErrCodeIO, "Failed to read file: %v", err)
	}

	return Success("File read successfully", map[string]any{
		"file_path": filePath,
		"content":   string(content),
		"file_info": map[string]any{
			"size":          len(content),
			"lines":         strings.Count(string(content), "\n") + 1,
			"extension":     strings.TrimPrefix(filepath.Ext(safePath), "."),
			"last_modified": info.ModTime().Format(time.DateTime),
		},
	})
}

// ListFiles lists files and subdirectories under an allowed directory.
type ListFiles struct {
	paths  *security.Path
	logger log.Logger
}

// NewListFiles creates the list_files handler over the read-scope validator.
func NewListFiles(paths *security.Path, logger log.Logger) *ListFiles {
	return &ListFiles{paths: paths, logger: logger}
}

func (*ListFiles) Name() string { return ToolListFiles }

func (*ListFiles) Description() string {
	return "List files and directories in a specified path. " +
		"Use this tool to browse the project structure, find specific files, " +
		"understand the codebase organization, and discover what files exist " +
		"before reading them."
}

func (*ListFiles) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"directory": stringProp(`Directory path relative to project root (e.g., "app/tools")`),
		"recursive": booleanProp("Whether to list files recursively in subdirectories (default false)"),
		"pattern":   stringProp(`Filename pattern to match (e.g., "*.go", "*.tsx")`),
	}, "directory")
}

func (t *ListFiles) Handle(_ context.Context, args map[string]any) Result {
	directory := stringArg(args, "directory")
	recursive := boolArg(args, "recursive", false)
	pattern := stringArg(args, "pattern")
	t.logger.Info("list_files called", "directory", directory, "recursive", recursive)

	if directory == "" {
		return Failure(ErrCodeValidation, "directory is required")
	}

	safePath, err := t.paths.Resolve(directory)
	if err != nil {
		return securityFailure(t.paths, directory, err)
	}

	info, err := os.Stat(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Failuref(ErrCodeNotFound, "Directory not found: %s", directory)
		}
		return Failuref(ErrCodeIO, "Failed to list directory: %v", err)
	}
	if !info.IsDir() {
		return Failuref(ErrCodeValidation, "Path is not a directory: %s", directory)
	}

	var nameGlob glob.Glob
	if pattern != "" {
		nameGlob, err = glob.Compile(pattern)
		if err != nil {
			return Failuref(ErrCodeValidation, "Invalid pattern '%s': %v", pattern, err)
		}
	}

	var files, dirs []map[string]any
	collect := func(path string, d fs.DirEntry) error {
		rel := t.paths.Rel(path)
		if d.IsDir() {
			dirs = append(dirs, map[string]any{
				"name": d.Name(),
				"path": rel,
				"type": "directory",
			})
			return nil
		}
		if nameGlob != nil && !nameGlob.Match(d.Name()) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, map[string]any{
			"name":      d.Name(),
			"path":      rel,
			"size":      fi.Size(),
			"extension": strings.TrimPrefix(filepath.Ext(d.Name()), "."),
			"modified":  fi.ModTime().Format(time.DateTime),
		})
		return nil
	}

	if recursive {
		err = filepath.WalkDir(safePath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == safePath {
				return nil
			}
			return collect(path, d)
		})
	} else {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(safePath)
		if err == nil {
			for _, entry := range entries {
				if cerr := collect(filepath.Join(safePath, entry.Name()), entry); cerr != nil {
					err = cerr
					break
				}
			}
		}
	}
	if err != nil {
		return Failuref(ErrCodeIO, "Failed to list directory: %v", err)
	}

	return Success("Directory listed successfully", map[string]any{
		"directory":         directory,
		"files":             files,
		"directories":       dirs,
		"total_files":       len(files),
		"total_directories": len(dirs),
		"recursive":         recursive,
	})
}

// WriteFile creates or overwrites a project file. Writes are password-gated
// and confined to a narrower allow-list than reads; existing files are backed
// up first unless the caller opts out.
type WriteFile struct {
	paths    *security.Path
	password string
	logger   log.Logger
}

// NewWriteFile creates the write_file handler over the write-scope validator.
func NewWriteFile(paths *security.Path, password string, logger log.Logger) *WriteFile {
	return &WriteFile{paths: paths, password: password, logger: logger}
}

func (*WriteFile) Name() string { return ToolWriteFile }

func (*WriteFile) Description() string {
	return "Write or modify files in the project codebase. " +
		"CAUTION: This tool can modify your code. Use carefully! " +
		"Use this tool to create new files, update existing files, fix bugs, " +
		"implement new features, or refactor code. " +
		"Always create a backup before making changes."
}

func (*WriteFile) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"file_path": stringProp(`Path to the file to write/modify (e.g., "app/tools/export_orders.go")`),
		"content":   stringProp("Complete file content to write"),
		"password":  stringProp("Password required for file modification (security measure)"),
		"backup":    booleanProp("Whether to create a backup of existing file before modifying (default true)"),
	}, "file_path", "content", "password")
}

func (t *WriteFile) Handle(_ context.Context, args map[string]any) Result {
	filePath := stringArg(args, "file_path")
	t.logger.Info("write_file called", "file_path", filePath)

	if !passwordMatches(stringArg(args, "password"), t.password) {
		return Failure(ErrCodeUnauthorized,
			"Invalid password. File modification cancelled for security reasons.")
	}
	if filePath == "" {
		return Failure(ErrCodeValidation, "file_path is required")
	}
	if !hasArg(args, "content") {
		return Failure(ErrCodeValidation, "content is required")
	}
	content, _ := args["content"].(string)
	backup := boolArg(args, "backup", true)

	safePath, err := t.paths.Resolve(filePath)
	if err != nil {
		return securityFailure(t.paths, filePath, err)
	}

	_, statErr := os.Stat(safePath)
	fileExists := statErr == nil

	var backupPath string
	if fileExists && backup {
		backupPath = safePath + ".backup." + time.Now().Format("20060102150405")
		if err := copyFile(safePath, backupPath); err != nil {
			return Failuref(ErrCodeIO, "Failed to create backup: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0o755); err != nil {
		return Failuref(ErrCodeIO, "Failed to write file: %v", err)
	}
	if err := os.WriteFile(safePath, []byte(content), 0o644); err != nil {
		return Failuref(ErrCodeIO, "Failed to write file: %v", err)
	}

	action := "created"
	message := "File created successfully"
	if fileExists {
		action = "updated"
		message = "File updated successfully"
	}

	data := map[string]any{
		"file_path":      filePath,
		"action":         action,
		"backup_created": backupPath != "",
		"file_size":      len(content),
		"lines":          strings.Count(content, "\n") + 1,
	}
	if backupPath != "" {
		data["backup_path"] = t.paths.Rel(backupPath)
	}

	return Success(message, data)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - source already validated
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - derived from validated path
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing backup file: %w", err)
	}
	return nil
}
