package canon

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/ppiankov/cogito/internal/extract"
	"github.com/ppiankov/cogito/internal/model"
	"gopkg.in/yaml.v3"
)

// Match qualities scale the tier ceiling of a citation
const (
	QualityExact = 1.0 // Term names the entity by id or name
	QualityAlias = 0.9 // Term is one of the entity's aliases
)

// Entity is one curated canon fact
type Entity struct {
	ID      string              `json:"id" yaml:"id"`
	Name    string              `json:"name" yaml:"name"`
	Aliases []string            `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Text    string              `json:"text" yaml:"text"`
	Tags    []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Source  string              `json:"source,omitempty" yaml:"source,omitempty"`
	Tier    model.AuthorityTier `json:"tier" yaml:"-"`
}

// Match is an entity found for a lookup term
type Match struct {
	Entity  Entity
	Term    string
	Quality float64
}

// canonFile is the on-disk YAML layout. File-level source and tier apply to
// every entity that does not set its own.
type canonFile struct {
	Source   string       `yaml:"source"`
	Tier     string       `yaml:"tier"`
	Entities []fileEntity `yaml:"entities"`
}

type fileEntity struct {
	Entity `yaml:",inline"`
	Tier   string `yaml:"tier"`
}

type indexEntry struct {
	id      string
	quality float64
}

// Store is the in-memory canon, indexed by normalized id, name and alias
type Store struct {
	mu         sync.RWMutex
	classifier *AuthorityClassifier
	entities   map[string]Entity
	order      []string
	index      map[string][]indexEntry
	version    uint64
	logger     *slog.Logger
}

// NewStore creates an empty canon store
func NewStore(classifier *AuthorityClassifier, logger *slog.Logger) *Store {
	if classifier == nil {
		classifier = NewAuthorityClassifier(model.AuthorityConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		classifier: classifier,
		entities:   make(map[string]Entity),
		index:      make(map[string][]indexEntry),
		logger:     logger,
	}
}

// Add inserts or replaces entities. An entity without a tier is classified
// by its source.
func (s *Store) Add(entities ...Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entities {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("canon entity %q has no id", e.Name)
		}
		if e.Name == "" {
			e.Name = e.ID
		}
		if e.Tier == model.TierUnknown {
			e.Tier = s.classifier.Classify(e.Source)
		}

		if _, exists := s.entities[e.ID]; exists {
			s.unindex(e.ID)
		} else {
			s.order = append(s.order, e.ID)
		}
		s.entities[e.ID] = e

		s.indexKey(e.ID, e.ID, QualityExact)
		s.indexKey(e.Name, e.ID, QualityExact)
		for _, alias := range e.Aliases {
			s.indexKey(alias, e.ID, QualityAlias)
		}
	}

	s.version++
	return nil
}

func (s *Store) indexKey(term, id string, quality float64) {
	key := Normalize(term)
	if key == "" {
		return
	}
	for i, entry := range s.index[key] {
		if entry.id == id {
			if quality > entry.quality {
				s.index[key][i].quality = quality
			}
			return
		}
	}
	s.index[key] = append(s.index[key], indexEntry{id: id, quality: quality})
}

func (s *Store) unindex(id string) {
	for key, entries := range s.index {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.id != id {
				kept = append(kept, entry)
			}
		}
		if len(kept) == 0 {
			delete(s.index, key)
		} else {
			s.index[key] = kept
		}
	}
}

// LoadPaths loads canon files and walks directories for .yaml, .yml, .html
// and .htm documents
func (s *Store) LoadPaths(paths []string) error {
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("stat canon path %s: %w", root, err)
		}

		if !info.IsDir() {
			if err := s.LoadFile(root); err != nil {
				return err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isCanonFile(path) {
				return nil
			}
			return s.LoadFile(path)
		})
		if err != nil {
			return fmt.Errorf("walk canon dir %s: %w", root, err)
		}
	}

	s.logger.Info("canon loaded", "entities", s.Len(), "paths", len(paths))
	return nil
}

// LoadFile loads one YAML canon file or HTML canon document
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read canon file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return s.loadYAML(path, data)
	case ".html", ".htm":
		return s.loadHTML(path, data)
	default:
		return fmt.Errorf("unsupported canon file type: %s", path)
	}
}

func (s *Store) loadYAML(path string, data []byte) error {
	var file canonFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse canon file %s: %w", path, err)
	}

	source := file.Source
	if source == "" {
		source = path
	}

	entities := make([]Entity, 0, len(file.Entities))
	for _, fe := range file.Entities {
		e := fe.Entity
		if e.Source == "" {
			e.Source = source
		}
		switch {
		case fe.Tier != "":
			e.Tier = model.ParseTier(fe.Tier)
		case file.Tier != "":
			e.Tier = model.ParseTier(file.Tier)
		}
		entities = append(entities, e)
	}

	if err := s.Add(entities...); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadHTML turns a whole document into a single entity named after the file
func (s *Store) loadHTML(path string, data []byte) error {
	text, err := extract.VisibleText(string(data))
	if err != nil {
		return fmt.Errorf("parse canon document %s: %w", path, err)
	}
	if text == "" {
		return nil
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := strings.NewReplacer("-", " ", "_", " ").Replace(id)

	return s.Add(Entity{
		ID:     id,
		Name:   name,
		Text:   text,
		Source: path,
	})
}

// Match looks up every term and returns matched entities in first-seen
// order, keeping the best quality per entity
func (s *Store) Match(terms []string) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	pos := make(map[string]int)

	for _, term := range terms {
		key := Normalize(term)
		if len(key) < 2 {
			continue
		}
		for _, entry := range s.index[key] {
			if i, seen := pos[entry.id]; seen {
				if entry.quality > matches[i].Quality {
					matches[i].Quality = entry.quality
					matches[i].Term = term
				}
				continue
			}
			pos[entry.id] = len(matches)
			matches = append(matches, Match{
				Entity:  s.entities[entry.id],
				Term:    term,
				Quality: entry.quality,
			})
		}
	}

	return matches
}

// Search finds entities named by any word, adjacent word pair or the whole
// query, up to limit results (0 means no limit)
func (s *Store) Search(query string, limit int) []Entity {
	words := strings.Fields(query)
	terms := []string{query}
	for i, w := range words {
		terms = append(terms, w)
		if i+1 < len(words) {
			terms = append(terms, w+" "+words[i+1])
		}
	}

	var entities []Entity
	for _, m := range s.Match(terms) {
		entities = append(entities, m.Entity)
		if limit > 0 && len(entities) == limit {
			break
		}
	}
	return entities
}

// Get returns an entity by id
func (s *Store) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Len returns the number of entities
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Version changes every time the canon changes; caches key on it
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Normalize lowercases a term and drops everything but letters and digits,
// so "Era 3", "era-3" and "Era3" share a key
func Normalize(term string) string {
	var b strings.Builder
	for _, r := range term {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func isCanonFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".html", ".htm":
		return true
	}
	return false
}
