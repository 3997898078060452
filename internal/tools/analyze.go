package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/security"
)

// ToolAnalyzeCode is the code-search tool name.
const ToolAnalyzeCode = "analyze_code"

// maxMatchesPerFile caps the matching lines reported for one file.
const maxMatchesPerFile = 5

// AnalyzeCode searches project files for text, type definitions, function
// calls, or imports. The heuristics are line-based; this is a navigation aid
// for the model, not a parser.
type AnalyzeCode struct {
	paths  *security.Path
	logger log.Logger
}

// NewAnalyzeCode creates the analyze_code handler over the read-scope validator.
func NewAnalyzeCode(paths *security.Path, logger log.Logger) *AnalyzeCode {
	return &AnalyzeCode{paths: paths, logger: logger}
}

func (*AnalyzeCode) Name() string { return ToolAnalyzeCode }

func (*AnalyzeCode) Description() string {
	return "Analyze code structure and relationships. " +
		"Use this tool to find where a type or function is used, identify " +
		"dependencies, search for specific code patterns, and understand code " +
		"relationships. This helps you understand the impact of changes before " +
		"making them."
}

func (*AnalyzeCode) Parameters() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"search_term": stringProp("Term to search for (type name, function name, or text)"),
		"search_type": stringProp("Type of search: text, class, function, import (default text)"),
		"directory":   stringProp("Directory to search in (default: first allowed directory)"),
		"file_pattern": stringProp(`File pattern to match (e.g., "*.go", "*.tsx"; default "*.go")`),
	}, "search_term")
}

func (t *AnalyzeCode) Handle(_ context.Context, args map[string]any) Result {
	searchTerm := stringArg(args, "search_term")
	searchType := stringArg(args, "search_type")
	directory := stringArg(args, "directory")
	filePattern := stringArg(args, "file_pattern")

	t.logger.Info("analyze_code called",
		"search_term", searchTerm, "search_type", searchType, "directory", directory)

	if searchTerm == "" {
		return Failure(ErrCodeValidation, "search_term is required")
	}
	switch searchType {
	case "":
		searchType = "text"
	case "text", "class", "function", "import":
	default:
		return Failuref(ErrCodeValidation,
			"Invalid search_type '%s'. Supported: text, class, function, import.", searchType)
	}
	if directory == "" {
		directory = t.paths.AllowedDirs()[0]
	}
	if filePattern == "" {
		filePattern = "*.go"
	}

	nameGlob, err := glob.Compile(filePattern)
	if err != nil {
		return Failuref(ErrCodeValidation, "Invalid file_pattern '%s': %v", filePattern, err)
	}

	safeDir, err := t.paths.Resolve(directory)
	if err != nil {
		return securityFailure(t.paths, directory, err)
	}
	if info, err := os.Stat(safeDir); err != nil || !info.IsDir() {
		return Failuref(ErrCodeNotFound, "Directory not found: %s", directory)
	}

	var results []map[string]any
	filesSearched := 0
	walkErr := filepath.WalkDir(safeDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !nameGlob.Match(d.Name()) {
			return nil
		}
		rel := t.paths.Rel(path)
		// Files under a blocked pattern stay invisible to the search.
		if _, err := t.paths.Resolve(rel); err != nil {
			return nil
		}

		content, err := os.ReadFile(path) // #nosec G304 - path validated above
		if err != nil {
			return nil
		}
		filesSearched++

		matches := searchContent(string(content), searchTerm, searchType)
		if len(matches) > 0 {
			results = append(results, map[string]any{
				"file":    rel,
				"matches": matches,
			})
		}
		return nil
	})
	if walkErr != nil {
		return Failuref(ErrCodeIO, "Failed to analyze code: %v", walkErr)
	}

	return Success("Code analysis complete", map[string]any{
		"search_type":    searchType,
		"search_term":    searchTerm,
		"directory":      directory,
		"files_searched": filesSearched,
		"results":        results,
		"total_matches":  len(results),
	})
}

// searchContent applies the per-type heuristic to one file's content.
func searchContent(content, term, searchType string) []string {
	switch searchType {
	case "class":
		return searchTypeDecl(content, term)
	case "function":
		return searchFunctionCalls(content, term)
	case "import":
		return searchImports(content, term)
	default:
		return searchText(content, term)
	}
}

// searchText reports lines containing term case-insensitively, capped at
// maxMatchesPerFile with a continuation marker.
func searchText(content, term string) []string {
	lowerTerm := strings.ToLower(term)
	var matches []string
	for i, line := range strings.Split(content, "\n") {
		if !strings.Contains(strings.ToLower(line), lowerTerm) {
			continue
		}
		matches = append(matches, fmt.Sprintf("Line %d: %s", i+1, strings.TrimSpace(line)))
		if len(matches) >= maxMatchesPerFile {
			matches = append(matches, "... and more")
			break
		}
	}
	return matches
}

func searchTypeDecl(content, term string) []string {
	quoted := regexp.QuoteMeta(term)
	var matches []string
	if regexp.MustCompile(`type\s+` + quoted + `\b`).MatchString(content) {
		matches = append(matches, "Type definition found")
	}
	if n := len(regexp.MustCompile(`\b`+quoted+`\s*{`).FindAllString(content, -1)); n > 0 {
		matches = append(matches, fmt.Sprintf("Instantiated %d times", n))
	}
	return matches
}

func searchFunctionCalls(content, term string) []string {
	quoted := regexp.QuoteMeta(term)
	if n := len(regexp.MustCompile(`\b` + quoted + `\s*\(`).FindAllString(content, -1)); n > 0 {
		return []string{fmt.Sprintf("Called %d times", n)}
	}
	return nil
}

func searchImports(content, term string) []string {
	quoted := regexp.QuoteMeta(term)
	if regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:\w+\s+)?"[^"]*` + quoted + `[^"]*"`).MatchString(content) {
		return []string{"Imported/used"}
	}
	return nil
}
