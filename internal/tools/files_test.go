package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/security"
)

// newTestProject lays out a small project tree and returns read and write
// validators over it.
func newTestProject(t *testing.T) (readPaths, writePaths *security.Path, root string) {
	t.Helper()
	root = t.TempDir()

	seed := map[string]string{
		"app/models.go":                 "package app\n\ntype Order struct {\n\tID int64\n}\n",
		"app/tools/create_order.go":     "package tools\n\nfunc CreateOrder() {}\n",
		"app/certs/server.key":          "SECRET KEY MATERIAL",
		"resources/js/pages/chat.tsx":   "export default function Chat() {}\n",
		"config/app.go":                 "package config\n\nimport \"github.com/spf13/viper\"\n\nvar _ = viper.New\n",
		"routes/routes.go":              "package routes\n",
	}
	for path, content := range seed {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	readPaths, err := security.NewPath(root,
		[]string{"app", "resources", "routes", "config"},
		[]string{".env", ".env.*", "*.key", "*.pem"})
	if err != nil {
		t.Fatal(err)
	}
	writePaths, err = security.NewPath(root,
		[]string{"app/tools", "resources/js/pages"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return readPaths, writePaths, root
}

func TestReadFile_Success(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewReadFile(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{"file_path": "app/models.go"})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	if !strings.Contains(res.Data["content"].(string), "type Order struct") {
		t.Errorf("content wrong: %v", res.Data["content"])
	}
	info := res.Data["file_info"].(map[string]any)
	if info["extension"] != "go" || info["lines"].(int) < 4 {
		t.Errorf("file_info wrong: %+v", info)
	}
}

func TestReadFile_Denied(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewReadFile(readPaths, log.NewNop())

	tests := []struct {
		name string
		path string
		code string
	}{
		{"outside allow list", "../etc/passwd", ErrCodeSecurity},
		{"unlisted top dir", "storage/logs/app.log", ErrCodeSecurity},
		{"blocked pattern", "app/certs/server.key", ErrCodeSecurity},
		{"missing file", "app/ghost.go", ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.Handle(context.Background(), map[string]any{"file_path": tt.path})
			if res.Status != StatusError || res.Error.Code != tt.code {
				t.Errorf("Handle(%q) = %+v, want %s error", tt.path, res, tt.code)
			}
		})
	}
}

func TestReadFile_TooLarge(t *testing.T) {
	readPaths, _, root := newTestProject(t)
	big := filepath.Join(root, "app", "big.txt")
	if err := os.WriteFile(big, make([]byte, MaxReadFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}
	h := NewReadFile(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{"file_path": "app/big.txt"})
	if res.Status != StatusError || res.Error.Code != ErrCodeSecurity {
		t.Fatalf("want security error for oversized file, got %+v", res)
	}
	if !strings.Contains(res.Message, "500KB") {
		t.Errorf("message should state the limit: %q", res.Message)
	}
}

func TestListFiles_FlatAndRecursive(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewListFiles(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{"directory": "app"})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	// Flat listing sees models.go plus the tools and certs directories.
	if res.Data["total_files"].(int) != 1 || res.Data["total_directories"].(int) != 2 {
		t.Errorf("flat counts wrong: files=%v dirs=%v",
			res.Data["total_files"], res.Data["total_directories"])
	}

	res = h.Handle(context.Background(), map[string]any{"directory": "app", "recursive": true})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	if res.Data["total_files"].(int) != 3 {
		t.Errorf("recursive should see all files, got %v", res.Data["total_files"])
	}
}

func TestListFiles_Pattern(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewListFiles(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"directory": "app",
		"recursive": true,
		"pattern":   "*.go",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	files := res.Data["files"].([]map[string]any)
	for _, f := range files {
		if !strings.HasSuffix(f["name"].(string), ".go") {
			t.Errorf("pattern leak: %+v", f)
		}
	}
	if len(files) != 2 {
		t.Errorf("got %d .go files, want 2", len(files))
	}
}

func TestListFiles_Errors(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewListFiles(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{"directory": "vendor"})
	if res.Status != StatusError || res.Error.Code != ErrCodeSecurity {
		t.Errorf("unlisted dir: want security error, got %+v", res)
	}

	res = h.Handle(context.Background(), map[string]any{"directory": "app/nonexistent"})
	if res.Status != StatusError || res.Error.Code != ErrCodeNotFound {
		t.Errorf("missing dir: want not_found, got %+v", res)
	}

	res = h.Handle(context.Background(), map[string]any{"directory": "app/models.go"})
	if res.Status != StatusError || res.Error.Code != ErrCodeValidation {
		t.Errorf("file as dir: want validation error, got %+v", res)
	}
}

func TestWriteFile_PasswordGate(t *testing.T) {
	_, writePaths, root := newTestProject(t)
	h := NewWriteFile(writePaths, "write-secret", log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"file_path": "app/tools/new_tool.go",
		"content":   "package tools\n",
		"password":  "wrong",
	})
	if res.Status != StatusError || res.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("want unauthorized, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "app/tools/new_tool.go")); !os.IsNotExist(err) {
		t.Error("file was written despite wrong password")
	}
}

func TestWriteFile_CreateAndUpdateWithBackup(t *testing.T) {
	_, writePaths, root := newTestProject(t)
	h := NewWriteFile(writePaths, "write-secret", log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"file_path": "app/tools/export_orders.go",
		"content":   "package tools\n\nfunc ExportOrders() {}\n",
		"password":  "write-secret",
	})
	if res.Status != StatusSuccess || res.Data["action"] != "created" {
		t.Fatalf("create failed: %+v", res)
	}
	if res.Data["backup_created"] != false {
		t.Error("new file should not produce a backup")
	}

	res = h.Handle(context.Background(), map[string]any{
		"file_path": "app/tools/export_orders.go",
		"content":   "package tools\n\nfunc ExportOrders() { /* v2 */ }\n",
		"password":  "write-secret",
	})
	if res.Status != StatusSuccess || res.Data["action"] != "updated" {
		t.Fatalf("update failed: %+v", res)
	}
	if res.Data["backup_created"] != true {
		t.Fatal("overwrite should create a backup")
	}

	backupRel := res.Data["backup_path"].(string)
	backup, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(backupRel)))
	if err != nil {
		t.Fatalf("backup not readable: %v", err)
	}
	if !strings.Contains(string(backup), "func ExportOrders() {}") {
		t.Errorf("backup holds wrong content: %q", backup)
	}

	current, _ := os.ReadFile(filepath.Join(root, "app/tools/export_orders.go"))
	if !strings.Contains(string(current), "v2") {
		t.Errorf("file not updated: %q", current)
	}
}

func TestWriteFile_BackupOptOut(t *testing.T) {
	_, writePaths, root := newTestProject(t)
	h := NewWriteFile(writePaths, "write-secret", log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"file_path": "app/tools/create_order.go",
		"content":   "package tools\n",
		"password":  "write-secret",
		"backup":    false,
	})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	if res.Data["backup_created"] != false {
		t.Error("backup=false was ignored")
	}

	entries, _ := os.ReadDir(filepath.Join(root, "app/tools"))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".backup.") {
			t.Errorf("unexpected backup file %s", e.Name())
		}
	}
}

func TestWriteFile_OutsideWriteScope(t *testing.T) {
	_, writePaths, _ := newTestProject(t)
	h := NewWriteFile(writePaths, "write-secret", log.NewNop())

	// Readable directories are not necessarily writable.
	res := h.Handle(context.Background(), map[string]any{
		"file_path": "app/models.go",
		"content":   "package app\n",
		"password":  "write-secret",
	})
	if res.Status != StatusError || res.Error.Code != ErrCodeSecurity {
		t.Fatalf("want security error, got %+v", res)
	}
}

func TestWriteFile_CreatesIntermediateDirs(t *testing.T) {
	_, writePaths, root := newTestProject(t)
	h := NewWriteFile(writePaths, "write-secret", log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"file_path": "resources/js/pages/orders/index.tsx",
		"content":   "export default function Orders() {}\n",
		"password":  "write-secret",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "resources/js/pages/orders/index.tsx")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
}

func TestAnalyzeCode_TextSearch(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewAnalyzeCode(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"search_term": "Order",
		"directory":   "app",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	results := res.Data["results"].([]map[string]any)
	if len(results) != 2 {
		t.Fatalf("got %d matching files, want 2: %+v", len(results), results)
	}
	first := results[0]["matches"].([]string)
	if !strings.HasPrefix(first[0], "Line ") {
		t.Errorf("text matches should carry line numbers: %+v", first)
	}
}

func TestAnalyzeCode_TypeAndImportSearch(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewAnalyzeCode(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"search_term": "Order",
		"search_type": "class",
		"directory":   "app",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	if res.Data["total_matches"].(int) != 1 {
		t.Errorf("type search: %+v", res.Data["results"])
	}

	res = h.Handle(context.Background(), map[string]any{
		"search_term":  "viper",
		"search_type":  "import",
		"directory":    "config",
		"file_pattern": "*.go",
	})
	if res.Status != StatusSuccess || res.Data["total_matches"].(int) != 1 {
		t.Errorf("import search failed: %+v", res)
	}
}

func TestAnalyzeCode_Validation(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewAnalyzeCode(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{})
	if res.Status != StatusError || res.Error.Code != ErrCodeValidation {
		t.Errorf("missing search_term: want validation error, got %+v", res)
	}

	res = h.Handle(context.Background(), map[string]any{
		"search_term": "x",
		"search_type": "regex",
	})
	if res.Status != StatusError || res.Error.Code != ErrCodeValidation {
		t.Errorf("bad search_type: want validation error, got %+v", res)
	}
}

func TestAnalyzeCode_SkipsBlockedFiles(t *testing.T) {
	readPaths, _, _ := newTestProject(t)
	h := NewAnalyzeCode(readPaths, log.NewNop())

	res := h.Handle(context.Background(), map[string]any{
		"search_term":  "SECRET",
		"directory":    "app",
		"file_pattern": "*",
	})
	if res.Status != StatusSuccess {
		t.Fatalf("Handle failed: %+v", res)
	}
	for _, r := range res.Data["results"].([]map[string]any) {
		if strings.Contains(r["file"].(string), "server.key") {
			t.Errorf("blocked file leaked into results: %+v", r)
		}
	}
}
