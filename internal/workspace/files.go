package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxReadChars caps read_file output so a multi-file session stays inside
// the model's context window.
const MaxReadChars = 40_000

// FileEntry describes one file in a directory listing.
type FileEntry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
}

// DirListing is the read model behind the list_files tool.
type DirListing struct {
	Directory      string      `json:"directory"`
	Files          []FileEntry `json:"files"`
	Subdirectories []string    `json:"subdirectories"`
	TotalItems     int         `json:"total_items"`
	Message        string      `json:"message,omitempty"`
}

// ListDir lists a directory non-recursively, files and subdirectories
// separated, names sorted. A missing directory is reported in the listing
// rather than as an error so sessions can probe paths safely.
func (w *Workspace) ListDir(dir string) (DirListing, error) {
	dir = w.Resolve(dir)
	listing := DirListing{Directory: dir, Files: []FileEntry{}, Subdirectories: []string{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			listing.Message = "directory does not exist"
			return listing, nil
		}
		return listing, fmt.Errorf("list %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() {
			listing.Subdirectories = append(listing.Subdirectories, entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		listing.Files = append(listing.Files, FileEntry{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			SizeBytes: info.Size(),
			Modified:  info.ModTime().Format("2006-01-02"),
		})
	}
	listing.TotalItems = len(listing.Files) + len(listing.Subdirectories)
	return listing, nil
}

// ReadResult is the read model behind the read_file tool. Content carries
// the truncation notice when the file exceeded the cap; SizeChars is the
// pre-truncation length.
type ReadResult struct {
	Path      string `json:"filepath"`
	Content   string `json:"content"`
	SizeChars int    `json:"size_chars"`
	Truncated bool   `json:"truncated"`
}

// ReadFileCapped reads a file as text. HTML filings are stripped to plain
// text first; anything longer than MaxReadChars is cut with a notice.
func (w *Workspace) ReadFileCapped(path string) (ReadResult, error) {
	path = w.Resolve(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ReadResult{}, fmt.Errorf("file not found: %s", path)
		}
		return ReadResult{}, fmt.Errorf("read %s: %w", path, err)
	}

	content := string(raw)
	if isHTMLPath(path) {
		content = HTMLToText(content)
	}

	res := ReadResult{Path: path, SizeChars: len(content)}
	if len(content) > MaxReadChars {
		omitted := len(content) - MaxReadChars
		content = content[:MaxReadChars] + fmt.Sprintf("\n\n[... truncated - %d chars omitted ...]", omitted)
		res.Truncated = true
	}
	res.Content = content
	return res, nil
}

func isHTMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".htm", ".html":
		return true
	}
	return false
}
