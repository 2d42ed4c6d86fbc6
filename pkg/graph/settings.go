package graph

import (
	"errors"
	"sort"
	"strconv"
	"time"
)

// Settings are the native tunables of an embedded database.
type Settings struct {
	ReadOnly       bool
	WALEnabled     bool
	WALCompression bool
	WALSync        bool
	TxTimeout      time.Duration
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		WALEnabled:     true,
		WALCompression: true,
	}
}

type settingParser func(s *Settings, value string) error

func boolSetting(set func(*Settings, bool)) settingParser {
	return func(s *Settings, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		set(s, b)
		return nil
	}
}

var knownSettings = map[string]settingParser{
	"read_only":       boolSetting(func(s *Settings, b bool) { s.ReadOnly = b }),
	"wal_enabled":     boolSetting(func(s *Settings, b bool) { s.WALEnabled = b }),
	"wal_compression": boolSetting(func(s *Settings, b bool) { s.WALCompression = b }),
	"wal_sync":        boolSetting(func(s *Settings, b bool) { s.WALSync = b }),
	"tx_timeout": func(s *Settings, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		if d < 0 {
			return errors.New("must not be negative")
		}
		s.TxTimeout = d
		return nil
	},
}

var errUnknownSetting = errors.New("unknown setting")

// Apply sets key to value, rejecting unknown keys and malformed values.
func (s *Settings) Apply(key, value string) error {
	parse, ok := knownSettings[key]
	if !ok {
		return &SettingError{Key: key, Value: value, Cause: errUnknownSetting}
	}
	if err := parse(s, value); err != nil {
		return &SettingError{Key: key, Value: value, Cause: err}
	}
	return nil
}

// SettingKeys lists the recognised setting keys in sorted order
func SettingKeys() []string {
	keys := make([]string, 0, len(knownSettings))
	for k := range knownSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
