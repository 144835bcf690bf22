// Package settings holds the operator-editable rotation settings.
//
// Every mutation is validated, committed atomically, persisted when a
// storage backend is configured and then announced to listeners outside the
// lock. Readers get value snapshots.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"linkguard/internal/rotation"
	"linkguard/internal/storage"
	"linkguard/pkg/logx"
)

const (
	KeyRotation     = "rotation.config"
	KeyPublishState = "rotation.state"

	persistTimeout = 5 * time.Second
)

// Listener observes committed changes.
type Listener func(old, next rotation.Config)

type Store struct {
	mu        sync.RWMutex
	cfg       rotation.Config
	listeners []Listener

	kv  storage.Store // nil means in-memory only
	log logx.Logger
}

func New(initial rotation.Config, kv storage.Store, log logx.Logger) *Store {
	return &Store{
		cfg: initial.Clone(),
		kv:  kv,
		log: log.With(logx.String("comp", "settings")),
	}
}

// Load replaces the seed with persisted settings, if any.
func (s *Store) Load(ctx context.Context) (bool, error) {
	if s.kv == nil {
		return false, nil
	}
	raw, ok, err := s.kv.Get(ctx, KeyRotation)
	if err != nil || !ok {
		return false, err
	}
	var cfg rotation.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return false, fmt.Errorf("decode %s: %w", KeyRotation, err)
	}
	if cfg.UpdateMode == "" {
		cfg.UpdateMode = rotation.ModeReplace
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Snapshot() rotation.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

func (s *Store) OnChange(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) SetChannels(target string, sources []rotation.SourceChat) error {
	target = strings.TrimSpace(target)
	if !rotation.ValidChatID(target) {
		return fmt.Errorf("%w: invalid target chat %q", rotation.ErrConfigInvalid, target)
	}
	if len(sources) == 0 {
		return fmt.Errorf("%w: at least one source chat is required", rotation.ErrConfigInvalid)
	}
	seen := make(map[string]struct{}, len(sources))
	clean := make([]rotation.SourceChat, 0, len(sources))
	for _, src := range sources {
		src.ID = strings.TrimSpace(src.ID)
		src.Alias = strings.TrimSpace(src.Alias)
		if !rotation.ValidChatID(src.ID) {
			return fmt.Errorf("%w: invalid source chat %q", rotation.ErrConfigInvalid, src.ID)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("%w: duplicate source chat %q", rotation.ErrConfigInvalid, src.ID)
		}
		seen[src.ID] = struct{}{}
		clean = append(clean, src)
	}
	return s.update(func(c *rotation.Config) error {
		c.Target = target
		c.Sources = clean
		return nil
	})
}

func (s *Store) SetInterval(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: interval must be >= 1 minute", rotation.ErrConfigInvalid)
	}
	return s.update(func(c *rotation.Config) error { c.IntervalMinutes = minutes; return nil })
}

func (s *Store) SetLimit(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: user limit must be >= 1", rotation.ErrConfigInvalid)
	}
	return s.update(func(c *rotation.Config) error { c.UserLimit = n; return nil })
}

func (s *Store) SetTemplate(tpl string) error {
	if strings.TrimSpace(tpl) == "" {
		return fmt.Errorf("%w: template is empty", rotation.ErrConfigInvalid)
	}
	return s.update(func(c *rotation.Config) error { c.Template = tpl; return nil })
}

func (s *Store) SetUpdateMode(m rotation.UpdateMode) error {
	if m != rotation.ModeEdit && m != rotation.ModeReplace {
		return fmt.Errorf("%w: update mode %q", rotation.ErrConfigInvalid, m)
	}
	return s.update(func(c *rotation.Config) error { c.UpdateMode = m; return nil })
}

// ToggleUpdateMode flips edit/replace and returns the new mode.
func (s *Store) ToggleUpdateMode() (rotation.UpdateMode, error) {
	var mode rotation.UpdateMode
	err := s.update(func(c *rotation.Config) error {
		c.UpdateMode = c.UpdateMode.Toggle()
		mode = c.UpdateMode
		return nil
	})
	return mode, err
}

func (s *Store) SetAutostart(on bool) error {
	return s.update(func(c *rotation.Config) error {
		if c.Autostart == on {
			return errUnchanged
		}
		c.Autostart = on
		return nil
	})
}

var errUnchanged = errors.New("unchanged")

func (s *Store) update(mutate func(*rotation.Config) error) error {
	s.mu.Lock()
	old := s.cfg.Clone()
	next := s.cfg.Clone()
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	s.cfg = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.persist(next)
	for _, l := range listeners {
		l(old, next.Clone())
	}
	return nil
}

func (s *Store) persist(cfg rotation.Config) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		s.log.Error("encode settings failed", logx.Err(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.kv.Put(ctx, KeyRotation, raw); err != nil {
		s.log.Warn("persist settings failed", logx.Err(err))
	}
}

// SavePublishState stores the live announcement reference.
func (s *Store) SavePublishState(ctx context.Context, st rotation.PublishState) error {
	if s.kv == nil {
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, KeyPublishState, raw)
}

func (s *Store) LoadPublishState(ctx context.Context) (rotation.PublishState, bool, error) {
	var st rotation.PublishState
	if s.kv == nil {
		return st, false, nil
	}
	raw, ok, err := s.kv.Get(ctx, KeyPublishState)
	if err != nil || !ok {
		return st, false, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, false, fmt.Errorf("decode %s: %w", KeyPublishState, err)
	}
	return st, true, nil
}
