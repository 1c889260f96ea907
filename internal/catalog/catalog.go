package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Kind distinguishes files from folders in the catalog tree.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Entry is one node of the media tree the admin selects from. Path is
// relative to the media root with forward slashes; it is the opaque mediaRef
// the engine stores.
type Entry struct {
	Name     string  `json:"name"`
	Kind     Kind    `json:"kind"`
	Path     string  `json:"path"`
	Format   string  `json:"format,omitempty"`
	Children []Entry `json:"children,omitempty"`
}

// mediaFormats are the file extensions surfaced in the catalog.
var mediaFormats = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".webm": {}, ".avi": {}, ".mov": {}, ".m4v": {},
	".mp3": {}, ".flac": {}, ".wav": {}, ".ogg": {}, ".m4a": {},
}

// Service walks a media root directory and produces the selection tree. It
// never reads media bytes; streaming belongs to the media transport.
type Service struct {
	root string
	log  *zap.Logger
}

// NewService creates a catalog rooted at dir.
func NewService(dir string, log *zap.Logger) (*Service, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("media root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media root %s is not a directory", abs)
	}
	return &Service{root: abs, log: log}, nil
}

// Tree returns the current media tree. Hidden entries are skipped and only
// known media formats are listed; folders with no media anywhere below them
// are omitted.
func (s *Service) Tree() ([]Entry, error) {
	return s.walk(s.root, "")
}

func (s *Service) walk(dir, rel string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []Entry
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		if e.IsDir() {
			children, err := s.walk(filepath.Join(dir, name), childRel)
			if err != nil {
				s.log.Warn("skipping unreadable folder", zap.String("path", childRel), zap.Error(err))
				continue
			}
			if len(children) == 0 {
				continue
			}
			out = append(out, Entry{Name: name, Kind: KindFolder, Path: childRel, Children: children})
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := mediaFormats[ext]; !ok {
			continue
		}
		out = append(out, Entry{Name: name, Kind: KindFile, Path: childRel, Format: strings.TrimPrefix(ext, ".")})
	}
	return out, nil
}

// Contains reports whether mediaRef resolves to a file below the media
// root, rejecting traversal outside it.
func (s *Service) Contains(mediaRef string) bool {
	if mediaRef == "" {
		return false
	}
	full := filepath.Join(s.root, filepath.FromSlash(mediaRef))
	clean, err := filepath.Abs(full)
	if err != nil {
		return false
	}
	if clean != s.root && !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return false
	}
	info, err := os.Stat(clean)
	return err == nil && !info.IsDir()
}
