package vfs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const toolsLogPrefix = "vfs:tools"

// Tool describes one filesystem tool offered to the assistant model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type toolFunc func(ctx context.Context, args toolArgs) map[string]any

type toolArgs struct {
	Path     string `json:"path"`
	OldPath  string `json:"oldPath"`
	NewPath  string `json:"newPath"`
	Target   string `json:"target"`
	Data     string `json:"data"`
	Encoding string `json:"encoding"`
}

type toolEntry struct {
	def    Tool
	schema *gojsonschema.Schema
	run    toolFunc
}

// Toolset exposes FS operations as schema-validated tools.
type Toolset struct {
	fs    *FS
	tools map[string]*toolEntry
}

func pathParam(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// NewToolset builds the eleven filesystem tools over f.
func NewToolset(f *FS) (*Toolset, error) {
	ts := &Toolset{fs: f, tools: make(map[string]*toolEntry)}
	absPath := pathParam("The absolute path to the file.")
	utf8Only := map[string]any{"type": "string", "enum": []string{"utf8"}}

	defs := []struct {
		name, description string
		params            map[string]any
		run               toolFunc
	}{
		{"readFile", "Read a file from the virtual file system. Returns a string if encoding is 'utf8', otherwise base64 encoded bytes.",
			objectSchema(map[string]any{"path": absPath, "encoding": utf8Only}, "path"), ts.readFile},
		{"writeFile", "Write data to a file in the virtual file system. Data is a string; set encoding to 'base64' for binary content.",
			objectSchema(map[string]any{
				"path":     absPath,
				"data":     map[string]any{"type": "string"},
				"encoding": map[string]any{"type": "string", "enum": []string{"utf8", "base64"}},
			}, "path", "data"), ts.writeFile},
		{"unlink", "Delete a file from the virtual file system.",
			objectSchema(map[string]any{"path": absPath}, "path"), ts.unlink},
		{"readdir", "List files and directories in a directory.",
			objectSchema(map[string]any{"path": absPath}, "path"), ts.readdir},
		{"mkdir", "Create a new directory.",
			objectSchema(map[string]any{"path": absPath}, "path"), ts.mkdir},
		{"rmdir", "Remove a directory.",
			objectSchema(map[string]any{"path": absPath}, "path"), ts.rmdir},
		{"stat", "Get file or directory statistics.",
			objectSchema(map[string]any{"path": absPath}, "path"), ts.stat},
		{"lstat", "Get file or symlink statistics (does not follow symlinks).",
			objectSchema(map[string]any{"path": absPath}, "path"), ts.lstat},
		{"rename", "Rename a file or directory.",
			objectSchema(map[string]any{
				"oldPath": pathParam("The absolute path of the file to rename."),
				"newPath": pathParam("The absolute path of the new file name."),
			}, "oldPath", "newPath"), ts.rename},
		{"symlink", "Create a symbolic link.",
			objectSchema(map[string]any{
				"target": pathParam("The target path that the symlink should point to"),
				"path":   pathParam("The absolute path where the symlink should be created"),
			}, "target", "path"), ts.symlink},
		{"readlink", "Read the target of a symbolic link.",
			objectSchema(map[string]any{"path": absPath}, "path"), ts.readlink},
	}

	for _, d := range defs {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.params))
		if err != nil {
			return nil, fmt.Errorf("%s - invalid schema for %s: %w", toolsLogPrefix, d.name, err)
		}
		ts.tools[d.name] = &toolEntry{
			def:    Tool{Name: d.name, Description: d.description, Parameters: d.params},
			schema: schema,
			run:    d.run,
		}
	}
	return ts, nil
}

// Definitions returns the tool descriptions sorted by name.
func (ts *Toolset) Definitions() []Tool {
	defs := make([]Tool, 0, len(ts.tools))
	for _, t := range ts.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates rawArgs against the tool's schema and runs it. Failures are
// reported in the result map rather than as errors, so the model can react.
func (ts *Toolset) Execute(ctx context.Context, name string, rawArgs []byte) map[string]any {
	t, ok := ts.tools[name]
	if !ok {
		return map[string]any{"success": false, "error": fmt.Sprintf("Unknown tool '%s'", name)}
	}
	if len(rawArgs) == 0 {
		rawArgs = []byte("{}")
	}

	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(rawArgs))
	if err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("Invalid arguments for %s: %v", name, err)}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Invalid arguments for %s: %s", name, strings.Join(details, "; ")),
		}
	}

	var args toolArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("Invalid arguments for %s: %v", name, err)}
	}
	args.Path = rooted(args.Path)
	args.OldPath = rooted(args.OldPath)
	args.NewPath = rooted(args.NewPath)

	slog.Debug(fmt.Sprintf("%s - %s %s", toolsLogPrefix, name, string(rawArgs)))
	return t.run(ctx, args)
}

func rooted(p string) string {
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func failure(operation, path string, err error) map[string]any {
	slog.Debug(fmt.Sprintf("%s - %s failed for path %s: %v", toolsLogPrefix, operation, path, err))
	return map[string]any{
		"success":   false,
		"error":     fmt.Sprintf("Failed to %s '%s': %v", operation, path, err),
		"operation": operation,
		"path":      path,
	}
}

// Stats is the JSON form of a file's metadata.
type Stats struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Mode      string    `json:"mode"`
	ModTime   time.Time `json:"mtime"`
	IsFile    bool      `json:"isFile"`
	IsDir     bool      `json:"isDirectory"`
	IsSymlink bool      `json:"isSymbolicLink"`
}

func statsOf(info os.FileInfo) Stats {
	return Stats{
		Name:      info.Name(),
		Size:      info.Size(),
		Mode:      info.Mode().String(),
		ModTime:   info.ModTime(),
		IsFile:    info.Mode().IsRegular(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}
}

func (ts *Toolset) readFile(_ context.Context, a toolArgs) map[string]any {
	data, err := ts.fs.ReadFile(a.Path)
	if err != nil {
		return failure("read file", a.Path, err)
	}
	if a.Encoding == "utf8" {
		return map[string]any{"success": true, "content": string(data), "path": a.Path, "encoding": "utf8"}
	}
	return map[string]any{"success": true, "content": base64.StdEncoding.EncodeToString(data), "path": a.Path, "encoding": "base64"}
}

func (ts *Toolset) writeFile(ctx context.Context, a toolArgs) map[string]any {
	data := []byte(a.Data)
	encoding := "utf8"
	if a.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return failure("write file", a.Path, err)
		}
		data, encoding = decoded, "base64"
	}
	if err := ts.fs.WriteFile(ctx, a.Path, data); err != nil {
		return failure("write file", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "bytesWritten": len(data), "encoding": encoding}
}

func (ts *Toolset) unlink(ctx context.Context, a toolArgs) map[string]any {
	if err := ts.fs.Unlink(ctx, a.Path); err != nil {
		return failure("delete file", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "message": fmt.Sprintf("File '%s' has been deleted successfully", a.Path)}
}

func (ts *Toolset) readdir(_ context.Context, a toolArgs) map[string]any {
	entries, err := ts.fs.ReadDir(a.Path)
	if err != nil {
		return failure("read directory", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "entries": entries, "count": len(entries)}
}

func (ts *Toolset) mkdir(ctx context.Context, a toolArgs) map[string]any {
	if err := ts.fs.Mkdir(ctx, a.Path); err != nil {
		return failure("create directory", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "message": fmt.Sprintf("Directory '%s' has been created successfully", a.Path)}
}

func (ts *Toolset) rmdir(ctx context.Context, a toolArgs) map[string]any {
	if err := ts.fs.Rmdir(ctx, a.Path); err != nil {
		return failure("remove directory", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "message": fmt.Sprintf("Directory '%s' has been removed successfully", a.Path)}
}

func (ts *Toolset) stat(_ context.Context, a toolArgs) map[string]any {
	info, err := ts.fs.Stat(a.Path)
	if err != nil {
		return failure("get file statistics", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "stats": statsOf(info)}
}

func (ts *Toolset) lstat(_ context.Context, a toolArgs) map[string]any {
	info, err := ts.fs.Lstat(a.Path)
	if err != nil {
		return failure("get link statistics", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "stats": statsOf(info)}
}

func (ts *Toolset) rename(ctx context.Context, a toolArgs) map[string]any {
	if err := ts.fs.Rename(ctx, a.OldPath, a.NewPath); err != nil {
		slog.Debug(fmt.Sprintf("%s - rename failed from %s to %s: %v", toolsLogPrefix, a.OldPath, a.NewPath, err))
		return map[string]any{
			"success":   false,
			"error":     fmt.Sprintf("Failed to rename '%s' to '%s': %v", a.OldPath, a.NewPath, err),
			"operation": "rename",
			"oldPath":   a.OldPath,
			"newPath":   a.NewPath,
		}
	}
	return map[string]any{
		"success": true,
		"oldPath": a.OldPath,
		"newPath": a.NewPath,
		"message": fmt.Sprintf("Successfully renamed '%s' to '%s'", a.OldPath, a.NewPath),
	}
}

func (ts *Toolset) symlink(ctx context.Context, a toolArgs) map[string]any {
	if err := ts.fs.Symlink(ctx, a.Target, a.Path); err != nil {
		slog.Debug(fmt.Sprintf("%s - symlink failed from %s to %s: %v", toolsLogPrefix, a.Target, a.Path, err))
		return map[string]any{
			"success":   false,
			"error":     fmt.Sprintf("Failed to create symlink '%s' pointing to '%s': %v", a.Path, a.Target, err),
			"operation": "create symlink",
			"target":    a.Target,
			"path":      a.Path,
		}
	}
	return map[string]any{
		"success": true,
		"target":  a.Target,
		"path":    a.Path,
		"message": fmt.Sprintf("Successfully created symlink '%s' pointing to '%s'", a.Path, a.Target),
	}
}

func (ts *Toolset) readlink(_ context.Context, a toolArgs) map[string]any {
	target, err := ts.fs.Readlink(a.Path)
	if err != nil {
		return failure("read symlink", a.Path, err)
	}
	return map[string]any{"success": true, "path": a.Path, "target": target}
}
