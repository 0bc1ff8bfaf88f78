package patterns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sellerdesk/edgeguard/pkg/version"
)

// Maximum size for a remote pattern document (1MB)
const maxRemoteResponseSize = 1 << 20

const debounceDelay = 100 * time.Millisecond

// ErrNoExternalPath is returned by Reload when no pattern file is configured.
var ErrNoExternalPath = errors.New("no external pattern file configured")

// Reload sources reported to the reload hook.
const (
	SourceFile   = "file"
	SourceRemote = "remote"
)

// ReloadHook is called after every reload attempt. err is nil on success,
// in which case set is the set active once the attempt completes.
type ReloadHook func(source string, set *Set, err error)

// Options configures a Manager.
type Options struct {
	// Path is an external pattern document that replaces the embedded set.
	Path string
	// HotReload watches Path and reloads it on change.
	HotReload bool
	// RemoteURL is fetched every RefreshInterval when Path is empty.
	RemoteURL       string
	RefreshInterval time.Duration

	Logger   zerolog.Logger
	OnReload ReloadHook
}

// ReloadStats contains statistics about pattern reloads.
type ReloadStats struct {
	Version            string    `json:"version"`
	Patterns           int       `json:"patterns"`
	Source             string    `json:"source"`
	LastReloadTime     time.Time `json:"lastReloadTime,omitempty"`
	ReloadCount        int64     `json:"reloadCount"`
	LastError          error     `json:"-"`
	LastErrorStr       string    `json:"lastError,omitempty"`
	RemoteSuccesses    int64     `json:"remoteSuccesses,omitempty"`
	RemoteFailures     int64     `json:"remoteFailures,omitempty"`
	LastRemoteFetch    time.Time `json:"lastRemoteFetch,omitempty"`
	LastRemoteError    error     `json:"-"`
	LastRemoteErrorStr string    `json:"lastRemoteError,omitempty"`
}

// Manager holds the active pattern set and swaps it atomically on reload.
// Reads are lock-free; a failed reload keeps the previous set in place.
type Manager struct {
	current atomic.Pointer[Set]
	source  atomic.Value // string

	path       string
	remoteURL  string
	interval   time.Duration
	httpClient *http.Client
	log        zerolog.Logger
	onReload   ReloadHook

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex // serialises reloads and guards stats
	stats  ReloadStats
	closed bool
}

// NewManager creates a Manager seeded with the embedded pattern set.
// If opts.Path is set it must load successfully; an unreadable or invalid
// operator-supplied document is a startup error rather than a silent
// fallback to a different set.
func NewManager(opts Options) (*Manager, error) {
	m := &Manager{
		path:      opts.Path,
		remoteURL: opts.RemoteURL,
		interval:  opts.RefreshInterval,
		log:       opts.Logger.With().Str("component", "patterns").Logger(),
		onReload:  opts.OnReload,
		stopCh:    make(chan struct{}),
	}
	m.store(Default(), "embedded")

	if m.path != "" {
		if err := m.Reload(); err != nil {
			return nil, err
		}
		m.log.Info().
			Str("path", m.path).
			Str("version", m.Current().Version()).
			Int("patterns", m.Current().Len()).
			Msg("Loaded external pattern file")

		if opts.HotReload {
			if err := m.startWatcher(); err != nil {
				m.log.Warn().
					Err(err).
					Str("path", m.path).
					Msg("Failed to start file watcher, hot-reload disabled")
			} else {
				m.log.Info().Str("path", m.path).Msg("Hot-reload enabled for pattern file")
			}
		}
	}

	if m.remoteURL != "" && m.interval > 0 {
		m.httpClient = &http.Client{Timeout: 30 * time.Second}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		m.refreshFromRemote(ctx)

		m.startRemoteRefresh()
	}

	return m, nil
}

// Current returns the active pattern set. Safe for concurrent use.
func (m *Manager) Current() *Set {
	return m.current.Load()
}

// Reload re-reads the external pattern file.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return ErrNoExternalPath
	}

	set, err := m.loadFile()
	m.notify(SourceFile, set, err)
	if err != nil {
		m.stats.LastError = err
		return err
	}

	m.store(set, SourceFile)
	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.LastError = nil

	m.log.Info().
		Str("version", set.Version()).
		Int("patterns", set.Len()).
		Int64("reload_count", m.stats.ReloadCount).
		Msg("Pattern set reloaded")
	return nil
}

// Stats returns a snapshot of reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	set := m.Current()
	stats.Version = set.Version()
	stats.Patterns = set.Len()
	stats.Source, _ = m.source.Load().(string)
	if stats.LastError != nil {
		stats.LastErrorStr = stats.LastError.Error()
	}
	if stats.LastRemoteError != nil {
		stats.LastRemoteErrorStr = stats.LastRemoteError.Error()
	}
	return stats
}

// HasExternalPath reports whether a pattern file is configured.
func (m *Manager) HasExternalPath() bool {
	return m.path != ""
}

// Close stops background watchers. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) store(set *Set, source string) {
	m.current.Store(set)
	m.source.Store(source)
}

func (m *Manager) notify(source string, set *Set, err error) {
	if m.onReload != nil {
		m.onReload(source, set, err)
	}
}

func (m *Manager) loadFile() (*Set, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pattern file: %w", err)
	}
	return set, nil
}

func (m *Manager) loadRemote(ctx context.Context) (*Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.remoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "edgeguard/"+version.Full())
	req.Header.Set("Accept", "application/yaml, application/x-yaml, text/yaml, */*")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	set, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse remote patterns: %w", err)
	}
	return set, nil
}

func (m *Manager) startRemoteRefresh() {
	ticker := time.NewTicker(m.interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()

		m.log.Info().
			Str("url", m.remoteURL).
			Dur("interval", m.interval).
			Msg("Started remote pattern refresh loop")

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				m.refreshFromRemote(ctx)
				cancel()
			}
		}
	}()
}

// refreshFromRemote fetches the remote document. The local file, when
// configured, always takes priority over the remote copy.
func (m *Manager) refreshFromRemote(ctx context.Context) {
	set, err := m.loadRemote(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.LastRemoteFetch = time.Now()

	if err != nil {
		m.notify(SourceRemote, nil, err)
		m.stats.RemoteFailures++
		m.stats.LastRemoteError = err
		m.log.Warn().
			Err(err).
			Str("url", m.remoteURL).
			Int64("failures", m.stats.RemoteFailures).
			Msg("Remote pattern fetch failed, keeping previous set")
		return
	}

	m.stats.RemoteSuccesses++
	m.stats.LastRemoteError = nil

	if m.path != "" {
		m.notify(SourceRemote, m.Current(), nil)
		m.log.Debug().Str("url", m.remoteURL).Msg("Remote patterns fetched but file patterns take priority")
		return
	}

	m.store(set, SourceRemote)
	m.notify(SourceRemote, set, nil)
	m.log.Info().
		Str("version", set.Version()).
		Int("patterns", set.Len()).
		Msg("Remote pattern set applied")
}

// startWatcher watches the directory holding the pattern file so that
// editors which replace the file by rename are picked up too.
func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()
	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	target := filepath.Clean(m.path)
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			m.log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Pattern file changed")

			if debounce == nil {
				debounce = time.AfterFunc(debounceDelay, func() {
					if err := m.Reload(); err != nil {
						m.log.Warn().
							Err(err).
							Str("path", m.path).
							Msg("Hot-reload failed, keeping previous pattern set")
					}
				})
			} else {
				debounce.Reset(debounceDelay)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn().Err(err).Msg("File watcher error")

		case <-m.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}
