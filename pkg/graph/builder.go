package graph

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/magiconair/properties"
)

// Builder collects the location and settings of an embedded database
// before opening it.
type Builder struct {
	dir      string
	settings Settings
}

// NewBuilder returns a builder for an embedded database stored in dir
func NewBuilder(dir string) *Builder {
	return &Builder{
		dir:      dir,
		settings: DefaultSettings(),
	}
}

// SetConfig applies a single native setting.
func (b *Builder) SetConfig(key, value string) error {
	return b.settings.Apply(key, value)
}

// LoadPropertiesFromURL reads a properties document and applies every key
// in it as a setting. Supported schemes are file, http and https.
func (b *Builder) LoadPropertiesFromURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPropertiesURL, err)
	}

	var props *properties.Properties
	switch u.Scheme {
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return fmt.Errorf("%w: %q has no path", ErrInvalidPropertiesURL, raw)
		}
		props, err = properties.LoadFile(path, properties.UTF8)
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: %q has no host", ErrInvalidPropertiesURL, raw)
		}
		props, err = properties.LoadURL(raw)
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPropertiesURL, u.Scheme)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPropertiesURL, err)
	}

	keys := props.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		value, _ := props.Get(key)
		if err := b.SetConfig(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Settings returns the settings accumulated so far
func (b *Builder) Settings() Settings {
	return b.settings
}

// Open creates the directory if needed, replays the WAL and returns the
// opened database.
func (b *Builder) Open() (*DB, error) {
	return open(b.dir, b.settings)
}
