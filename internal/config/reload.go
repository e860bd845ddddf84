package config

import (
	"context"
	"fmt"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// reloadableKeys are the configuration keys safe to apply without a process
// restart: collector enablement, cardinality thresholds, and log level. Tier
// periods and the server bind address are excluded deliberately — changing
// them live would invalidate in-flight cycle contexts and listener sockets.
var reloadableKeys = map[string]struct{}{
	"collectors.enabled":              {},
	"monitoring.cardinality.warning":  {},
	"monitoring.cardinality.critical": {},
	"log.level":                       {},
}

// Watcher drives optional hot reload of a config file, invoking onChange
// with the newly loaded (and re-validated) Config whenever the file changes
// on disk. Rejected keys are reported via onRejected rather than applied.
type Watcher struct {
	v          *viper.Viper
	configPath string
	onChange   func(*Config)
	onRejected func(keys []string)
}

// NewWatcher wires fsnotify-based hot reload for configPath. Call Start to
// begin watching; cancel ctx to stop.
func NewWatcher(configPath string, onChange func(*Config), onRejected func(keys []string)) *Watcher {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	return &Watcher{v: v, configPath: configPath, onChange: onChange, onRejected: onRejected}
}

// Start begins watching the config file for changes until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", w.configPath, err)
	}
	prior := w.v.AllSettings()

	w.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		changed := w.v.AllSettings()
		rejected := diffDisallowedKeys(prior, changed)
		if len(rejected) > 0 && w.onRejected != nil {
			w.onRejected(rejected)
		}

		var cfg Config
		if err := w.v.Unmarshal(&cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}
		prior = changed
		if w.onChange != nil {
			w.onChange(&cfg)
		}
	})
	w.v.WatchConfig()

	go func() {
		<-ctx.Done()
	}()
	return nil
}

// diffDisallowedKeys returns dotted key paths present in after whose value
// differs from, or is missing in, before and that are not in reloadableKeys. It is a best-effort,
// shallow-then-nested walk sufficient for the exporter's flat config shape.
func diffDisallowedKeys(before, after map[string]interface{}) []string {
	var rejected []string
	walkDiff(before, after, "", &rejected)
	return rejected
}

func walkDiff(before, after map[string]interface{}, prefix string, out *[]string) {
	for k, av := range after {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		bv, existed := before[k]
		subAfter, isMap := av.(map[string]interface{})
		if isMap {
			subBefore, _ := bv.(map[string]interface{})
			walkDiff(subBefore, subAfter, key, out)
			continue
		}
		if !existed || !reflect.DeepEqual(bv, av) {
			if _, ok := reloadableKeys[key]; !ok {
				*out = append(*out, key)
			}
		}
	}
}

// DumpYAML renders cfg (with its API key redacted) as YAML for the debug
// endpoint.
func DumpYAML(cfg Config) (string, error) {
	b, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}
