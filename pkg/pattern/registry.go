package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/fsnotify.v1"
	"gopkg.in/yaml.v3"
)

// Registry manages a collection of parsing profiles.
type Registry interface {
	// Register adds a profile to the registry
	Register(profile *Profile) error

	// Get returns a profile by its id
	Get(profileID string) (*Profile, bool)

	// Lookup returns a profile by id, or the default profile for ""
	Lookup(profileID string) (*Profile, error)

	// List returns all registered profiles sorted by id
	List() []*Profile

	// Reload reloads all profiles from the configured directory
	Reload() error

	// Watch starts watching the profile directory for changes
	Watch() error

	// StopWatch stops watching the profile directory
	StopWatch()
}

// DefaultRegistry is the default implementation of Registry. The built-in
// default profile is always present and survives reloads.
type DefaultRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	files    map[string]string
	dir      string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func(event string, profile *Profile)
}

// NewRegistry creates a registry holding only the default profile.
func NewRegistry() *DefaultRegistry {
	r := &DefaultRegistry{}
	r.reset()
	return r
}

// NewRegistryWithDirectory creates a registry and loads profiles from dir.
func NewRegistryWithDirectory(dir string) (*DefaultRegistry, error) {
	r := NewRegistry()
	if err := r.LoadDirectory(dir); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DefaultRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	def := DefaultProfile()
	r.profiles = map[string]*Profile{def.ProfileID: def}
	r.files = make(map[string]string)
}

// Register adds a profile to the registry. A profile with the same id and
// version as a registered one is rejected; a new version replaces it.
func (r *DefaultRegistry) Register(profile *Profile) error {
	return r.register(profile, "")
}

func (r *DefaultRegistry) register(profile *Profile, path string) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}

	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	if !profile.IsCompiled() {
		if err := profile.Compile(); err != nil {
			return fmt.Errorf("compiling profile %q: %w", profile.ProfileID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.profiles[profile.ProfileID]; ok && existing.Version == profile.Version {
		if path == "" || r.files[path] != profile.ProfileID {
			return fmt.Errorf("profile %q version %s already registered", profile.ProfileID, profile.Version)
		}
	}

	r.profiles[profile.ProfileID] = profile
	if path != "" {
		r.files[path] = profile.ProfileID
	}
	return nil
}

// Get returns a profile by its id.
func (r *DefaultRegistry) Get(profileID string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[profileID]
	return profile, ok
}

// Lookup returns the profile with the given id. An empty id selects the
// default profile.
func (r *DefaultRegistry) Lookup(profileID string) (*Profile, error) {
	if profileID == "" {
		profileID = DefaultProfileID
	}
	profile, ok := r.Get(profileID)
	if !ok {
		return nil, fmt.Errorf("profile %q not found", profileID)
	}
	return profile, nil
}

// List returns all registered profiles sorted by id.
func (r *DefaultRegistry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ProfileID < profiles[j].ProfileID
	})
	return profiles
}

// Count returns the number of registered profiles, the default included.
func (r *DefaultRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// LoadDirectory loads all YAML profile files from a directory. A missing
// directory is not an error.
func (r *DefaultRegistry) LoadDirectory(dir string) error {
	r.dir = dir

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var loadErrors []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := r.LoadFile(path); err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("errors loading profiles: %s", strings.Join(loadErrors, "; "))
	}
	return nil
}

// LoadFile loads a single profile file.
func (r *DefaultRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	if err := r.register(&profile, path); err != nil {
		return fmt.Errorf("registering profile: %w", err)
	}
	return nil
}

// Reload clears every loaded profile and reloads the configured directory.
func (r *DefaultRegistry) Reload() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for reload")
	}
	r.reset()
	return r.LoadDirectory(r.dir)
}

// SetOnChange sets a callback invoked after the watcher applies a change.
// The profile is nil for removals.
func (r *DefaultRegistry) SetOnChange(fn func(event string, profile *Profile)) {
	r.onChange = fn
}

// Watch starts watching the profile directory for changes.
func (r *DefaultRegistry) Watch() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching directory %s: %w", r.dir, err)
	}

	r.watcher = watcher
	r.stopChan = make(chan struct{})
	go r.watchLoop(watcher, r.stopChan)
	return nil
}

func (r *DefaultRegistry) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				r.handleFileChange(event.Name, "create")
			case event.Op&fsnotify.Write == fsnotify.Write:
				r.handleFileChange(event.Name, "modify")
			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				r.handleFileRemove(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("dir", r.dir).Msg("profile watcher error")
		}
	}
}

func (r *DefaultRegistry) handleFileChange(path, eventType string) {
	if err := r.LoadFile(path); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("profile reload failed")
		return
	}

	r.mu.RLock()
	profile := r.profiles[r.files[path]]
	r.mu.RUnlock()

	log.Info().Str("file", path).Str("event", eventType).Msg("profile reloaded")
	if r.onChange != nil && profile != nil {
		r.onChange(eventType, profile)
	}
}

func (r *DefaultRegistry) handleFileRemove(path string) {
	if err := r.Reload(); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("profile directory reload failed")
	}
	log.Info().Str("file", path).Msg("profile removed")
	if r.onChange != nil {
		r.onChange("remove", nil)
	}
}

// StopWatch stops watching the profile directory.
func (r *DefaultRegistry) StopWatch() {
	if r.stopChan != nil {
		close(r.stopChan)
		r.stopChan = nil
	}
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
