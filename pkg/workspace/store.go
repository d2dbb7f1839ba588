package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/pkg/annotations"
)

// AppName is the directory name used under the app data dir.
const AppName = "gojobgraph"

// DefaultRoot returns <app data dir>/workspace.
func DefaultRoot() string {
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "workspace")
}

// Store reads and writes sidecar files.
//
// Directory layout:
//
//	<root>/annotations_<hash>.json
//	<root>/fixedtimes_<hash>.json
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore returns a store rooted at root, or DefaultRoot when root is
// blank.
func NewStore(root string, logger *zap.Logger) *Store {
	root = strings.TrimSpace(root)
	if root == "" {
		root = DefaultRoot()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, logger: logger}
}

func (s *Store) RootDir() string {
	return s.root
}

// Path returns the file backing key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.root, key+".json")
}

// SaveAnnotations writes list under key. An empty list removes the file and
// an empty key is ignored.
func (s *Store) SaveAnnotations(key string, list []annotations.Annotation) error {
	if len(list) == 0 {
		return s.remove(key)
	}
	return s.write(key, list)
}

// LoadAnnotations reads the notes stored under key. Missing or unreadable
// files yield an empty list.
func (s *Store) LoadAnnotations(key string) []annotations.Annotation {
	var list []annotations.Annotation
	if !s.read(key, &list) {
		return []annotations.Annotation{}
	}
	return list
}

// SaveFixedTimes writes overrides under key as [id, fixed] pairs sorted by
// id. An empty map removes the file.
func (s *Store) SaveFixedTimes(key string, overrides map[string]bool) error {
	if len(overrides) == 0 {
		return s.remove(key)
	}
	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	pairs := make([][2]any, len(ids))
	for i, id := range ids {
		pairs[i] = [2]any{id, overrides[id]}
	}
	return s.write(key, pairs)
}

// LoadFixedTimes reads the overrides stored under key. Malformed pairs are
// skipped; a missing or unreadable file yields an empty map.
func (s *Store) LoadFixedTimes(key string) map[string]bool {
	out := make(map[string]bool)
	var pairs [][]any
	if !s.read(key, &pairs) {
		return out
	}
	for _, p := range pairs {
		if len(p) != 2 {
			continue
		}
		id, ok := p[0].(string)
		fixed, okFixed := p[1].(bool)
		if ok && okFixed && id != "" {
			out[id] = fixed
		}
	}
	return out
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("workspace root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

func (s *Store) write(key string, v any) error {
	if key == "" {
		return nil
	}
	if err := s.ensureRoot(); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.root, key+".json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s *Store) read(key string, v any) bool {
	if key == "" {
		return false
	}
	b, err := os.ReadFile(s.Path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read workspace file", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.logger.Warn("Ignoring corrupt workspace file", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) remove(key string) error {
	if key == "" {
		return nil
	}
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
