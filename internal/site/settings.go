package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/logging"
)

const (
	settingsCollection = "settings"
	settingsID         = "site"

	// DefaultSiteName is shown until an admin sets one.
	DefaultSiteName = "Reelbox"
)

// ErrBlankSiteName is returned when saving an empty site name.
var ErrBlankSiteName = errors.New("site name must not be blank")

// Settings is the site-wide configuration.
type Settings struct {
	SiteName string
}

func defaults() Settings {
	return Settings{SiteName: DefaultSiteName}
}

// SettingsStore loads the settings once and keeps them in memory.
type SettingsStore struct {
	store  docstore.Store
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	cur    Settings
}

func NewSettingsStore(store docstore.Store, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{
		store:  store,
		logger: logging.WithComponent(logging.OrDiscard(logger), "settings"),
	}
}

// Get returns the defaults merged with any stored overrides. The stored
// record is read on first use only.
func (s *SettingsStore) Get(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cur, nil
	}

	cur := defaults()
	doc, err := s.store.Get(ctx, settingsCollection, settingsID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
	case err != nil:
		return Settings{}, fmt.Errorf("load settings: %w", err)
	default:
		if name := strings.TrimSpace(doc.String("siteName")); name != "" {
			cur.SiteName = name
		}
	}
	s.cur = cur
	s.loaded = true
	return cur, nil
}

// Save merges the given site name into the stored record.
func (s *SettingsStore) Save(ctx context.Context, siteName string) (Settings, error) {
	siteName = strings.TrimSpace(siteName)
	if siteName == "" {
		return Settings{}, ErrBlankSiteName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.store.Update(ctx, settingsCollection, settingsID, map[string]any{"siteName": siteName})
	if errors.Is(err, docstore.ErrNotFound) {
		_, err = s.store.Put(ctx, settingsCollection, settingsID, map[string]any{"siteName": siteName})
	}
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}

	if !s.loaded {
		s.cur = defaults()
		s.loaded = true
	}
	s.cur.SiteName = siteName
	s.logger.Info("site settings saved", "site_name", siteName)
	return s.cur, nil
}
