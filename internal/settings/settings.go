// Package settings persists the user-editable hub settings in the index
// database.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mocsync/internal/index"
	"github.com/starford/mocsync/internal/layout"
)

const (
	keyTemplatesFolder = "templates_folder"
	keyContainerPath   = "container_path"
)

// Settings are the values editable at runtime.
type Settings struct {
	// TemplatesFolder holds MOCTemplate.md and the <hub>-template.md files.
	TemplatesFolder string `json:"templates_folder"`
	// ContainerPath restricts hub discovery to one folder when set.
	ContainerPath string `json:"container_path"`
}

// Validate checks that both values are empty or well-formed folder paths.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.TemplatesFolder, validation.By(folderPath)),
		validation.Field(&s.ContainerPath, validation.By(folderPath)),
	)
}

func folderPath(value interface{}) error {
	p, _ := value.(string)
	if p == "" {
		return nil
	}
	for _, seg := range strings.Split(p, "/") {
		if err := layout.NameRule(seg); err != nil {
			return fmt.Errorf("segment %q %w", seg, err)
		}
	}
	return nil
}

// Store caches the settings in memory and writes every change through to
// the index database.
type Store struct {
	mu     sync.RWMutex
	db     *index.DB
	cur    Settings
	logger *slog.Logger
}

// Load reads the persisted settings, seeding missing keys from defaults.
func Load(db *index.DB, defaults Settings, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, cur: defaults, logger: logger}
	for key, dst := range map[string]*string{
		keyTemplatesFolder: &s.cur.TemplatesFolder,
		keyContainerPath:   &s.cur.ContainerPath,
	} {
		v, ok, err := db.GetSetting(key)
		if err != nil {
			return nil, fmt.Errorf("settings: load: %w", err)
		}
		if ok {
			*dst = v
			continue
		}
		if err := db.SetSetting(key, *dst); err != nil {
			return nil, fmt.Errorf("settings: seed: %w", err)
		}
	}
	if err := s.cur.Validate(); err != nil {
		return nil, fmt.Errorf("settings: stored values: %w", err)
	}
	return s, nil
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update validates and persists next.
func (s *Store) Update(next Settings) error {
	next.TemplatesFolder = strings.Trim(next.TemplatesFolder, "/")
	next.ContainerPath = strings.Trim(next.ContainerPath, "/")
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(next); err != nil {
		return err
	}
	s.cur = next
	s.logger.Info("settings: updated",
		slog.String("templates_folder", next.TemplatesFolder),
		slog.String("container_path", next.ContainerPath),
	)
	return nil
}

// FollowRename rewrites folder settings that point at or below oldPath after
// it was renamed to newPath. It reports whether anything changed.
func (s *Store) FollowRename(oldPath, newPath string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur
	next.TemplatesFolder = rebase(next.TemplatesFolder, oldPath, newPath)
	next.ContainerPath = rebase(next.ContainerPath, oldPath, newPath)
	if next == s.cur {
		return false, nil
	}
	if err := s.save(next); err != nil {
		return false, err
	}
	s.cur = next
	s.logger.Info("settings: followed rename", slog.String("from", oldPath), slog.String("to", newPath))
	return true, nil
}

func (s *Store) save(next Settings) error {
	err := errors.Join(
		s.db.SetSetting(keyTemplatesFolder, next.TemplatesFolder),
		s.db.SetSetting(keyContainerPath, next.ContainerPath),
	)
	if err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}

func rebase(p, oldPath, newPath string) string {
	switch {
	case p == "" || oldPath == "":
		return p
	case p == oldPath:
		return newPath
	case strings.HasPrefix(p, oldPath+"/"):
		return newPath + strings.TrimPrefix(p, oldPath)
	}
	return p
}

// HubTemplate returns the path of the template used for new hubs.
func (s Settings) HubTemplate() string {
	return layout.Join(s.TemplatesFolder, "MOCTemplate.md")
}

// ItemTemplate returns the path of the template used for new items of hub.
func (s Settings) ItemTemplate(hub string) string {
	return layout.Join(s.TemplatesFolder, layout.Stem(hub)+"-template.md")
}

// InTemplates reports whether p sits directly in the templates folder.
func (s Settings) InTemplates(p string) bool {
	return s.TemplatesFolder != "" && layout.Dir(p) == s.TemplatesFolder
}

// InContainer reports whether p lies below the container path, or always
// when no container is set.
func (s Settings) InContainer(p string) bool {
	return s.ContainerPath == "" || strings.HasPrefix(p, s.ContainerPath+"/")
}
