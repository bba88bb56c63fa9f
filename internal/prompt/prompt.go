// Package prompt locates prompt documents on disk. Prompts are markdown
// files under <repo>/prompts/, optionally organized into subfolders, with a
// completed/ folder holding finished work.
package prompt

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Prompt is one resolved prompt document.
type Prompt struct {
	Path    string // absolute path
	Name    string // file name
	Number  string // zero-padded numeric prefix, "" for named prompts
	Folder  string // subfolder relative to prompts/, "" for top level
	Content string
	Title   string
}

// ID returns the identifier used for state and log naming.
func (p *Prompt) ID() string {
	if p.Number != "" {
		return p.Number
	}
	return strings.TrimSuffix(p.Name, ".md")
}

// NotFoundError reports an input that matched no prompt file.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no prompt found for %q", e.Input)
}

// AmbiguousError reports an input that matched several prompt files.
type AmbiguousError struct {
	Input   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous prompt %q: %s", e.Input, strings.Join(e.Matches, ", "))
}

var rangeRe = regexp.MustCompile(`^(?:(.+)/)?(\d+)-(\d+)$`)

// ExpandInputs expands ranges and comma lists into individual identifiers:
//
//	"002-005"        -> 002 003 004 005
//	"002,005"        -> 002 005
//	"providers/01-03" -> providers/01 providers/02 providers/03
//
// Unrecognized tokens pass through unchanged. Duplicates are dropped,
// preserving first-seen order.
func ExpandInputs(inputs []string) []string {
	var expanded []string
	for _, input := range inputs {
		for _, part := range strings.Split(input, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			m := rangeRe.FindStringSubmatch(part)
			if m == nil {
				expanded = append(expanded, part)
				continue
			}
			folder, startRaw, endRaw := m[1], m[2], m[3]
			start, _ := strconv.Atoi(startRaw)
			end, _ := strconv.Atoi(endRaw)
			if start > end {
				start, end = end, start
			}
			width := max(len(startRaw), len(endRaw), 3)
			for n := start; n <= end; n++ {
				num := fmt.Sprintf("%0*d", width, n)
				if folder != "" {
					expanded = append(expanded, folder+"/"+num)
				} else {
					expanded = append(expanded, num)
				}
			}
		}
	}

	seen := make(map[string]bool, len(expanded))
	unique := expanded[:0]
	for _, id := range expanded {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique
}

// Resolver locates prompts under one prompts directory.
type Resolver struct {
	Dir string
}

// Resolve maps one identifier (number, partial name, or folder-qualified
// token) to a prompt document.
func (r *Resolver) Resolve(input string) (*Prompt, error) {
	token := strings.TrimSpace(input)
	folder := ""
	if i := strings.LastIndexByte(token, '/'); i >= 0 {
		folder = normalizeFolder(token[:i])
		token = strings.TrimSpace(token[i+1:])
		if strings.Contains(folder, "..") {
			return nil, fmt.Errorf("prompt folder %q: path traversal not allowed", input)
		}
	}

	searchRoot := r.Dir
	includeCompleted := false
	if folder != "" {
		searchRoot = filepath.Join(r.Dir, folder)
		if info, err := os.Stat(searchRoot); err != nil || !info.IsDir() {
			return nil, &NotFoundError{Input: input}
		}
		includeCompleted = folder == "completed" || strings.HasPrefix(folder, "completed/")
	}

	files, err := r.listFiles(searchRoot, includeCompleted)
	if err != nil {
		return nil, err
	}

	var matches []string
	if isNumeric(token) {
		padded := pad(token)
		for _, f := range files {
			if strings.HasPrefix(filepath.Base(f), padded+"-") {
				matches = append(matches, f)
			}
		}
	} else {
		needle := strings.ToLower(token)
		for _, f := range files {
			if strings.Contains(strings.ToLower(filepath.Base(f)), needle) {
				matches = append(matches, f)
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Input: input}
	case 1:
		return r.read(matches[0])
	default:
		rel := make([]string, len(matches))
		for i, m := range matches {
			rel[i] = r.relPath(m)
		}
		sort.Strings(rel)
		return nil, &AmbiguousError{Input: input, Matches: rel}
	}
}

// Latest returns the most recently modified active prompt, used when no
// identifier is given.
func (r *Resolver) Latest() (*Prompt, error) {
	files, err := r.listFiles(r.Dir, false)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &NotFoundError{Input: "(latest)"}
	}

	var newest string
	var newestMod int64
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = f, mod
		}
	}
	return r.read(newest)
}

// listFiles walks the search root for prompt candidates. Underscore-prefixed
// files are reserved for templates and skipped; completed/ is skipped unless
// addressed explicitly.
func (r *Resolver) listFiles(root string, includeCompleted bool) ([]string, error) {
	completedDir := filepath.Join(r.Dir, "completed")
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !includeCompleted && path == completedDir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, "_") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no prompts directory at %s", r.Dir)
		}
		return nil, err
	}
	return files, nil
}

func (r *Resolver) read(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)

	name := filepath.Base(path)
	number := ""
	if i := strings.IndexByte(name, '-'); i > 0 && isNumeric(name[:i]) {
		number = name[:i]
	}

	folder := filepath.Dir(r.relPath(path))
	if folder == "." {
		folder = ""
	}

	return &Prompt{
		Path:    path,
		Name:    name,
		Number:  number,
		Folder:  folder,
		Content: content,
		Title:   ExtractTitle(content),
	}, nil
}

func (r *Resolver) relPath(path string) string {
	rel, err := filepath.Rel(r.Dir, path)
	if err != nil {
		return path
	}
	return rel
}

// ExtractTitle returns the first markdown heading, or the first non-empty
// line truncated to 80 runes.
func ExtractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		runes := []rune(line)
		if len(runes) > 80 {
			return string(runes[:80]) + "..."
		}
		return line
	}
	return "Untitled prompt"
}

func normalizeFolder(v string) string {
	v = strings.ReplaceAll(strings.TrimSpace(v), "\\", "/")
	return strings.Trim(v, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func pad(s string) string {
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
