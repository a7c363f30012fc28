package core

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// Config layer names, lowest precedence first.
const (
	ConfigLayerDefaults = "defaults"
	ConfigLayerFile     = "config"
	ConfigLayerRuntime  = "runtime"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// ConfigSourceReporter is implemented by resolvers that can name the layer
// each setting came from.
type ConfigSourceReporter interface {
	Sources(defaults Config, loaded Config, runtime Config) (map[string]string, error)
}

type staticRawConfigLoader map[string]any

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l))
	maps.Copy(out, l)
	return out, nil
}

// NewStaticConfigLoader returns a loader serving a fixed raw config map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader(values)
}

// CfgxConfigProvider decodes a raw map over the defaults and validates it.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil || p.Loader == nil {
		return buildConfig(map[string]any{}, defaults)
	}
	raw, err := p.Loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return buildConfig(raw, defaults)
}

func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// configSetting is one tunable of Config as it appears in a layer map.
type configSetting struct {
	path  string
	set   func(Config) bool
	value func(Config) any
}

var configSettings = []configSetting{
	{
		path:  "service_name",
		set:   func(c Config) bool { return strings.TrimSpace(c.ServiceName) != "" },
		value: func(c Config) any { return c.ServiceName },
	},
	{
		path:  "activity.enabled",
		set:   func(c Config) bool { return c.Activity.Enabled },
		value: func(c Config) any { return c.Activity.Enabled },
	},
	{
		path:  "hardware_id_cache.enabled",
		set:   func(c Config) bool { return c.HardwareIDCache.Enabled },
		value: func(c Config) any { return c.HardwareIDCache.Enabled },
	},
	{
		path:  "hardware_id_cache.ttl",
		set:   func(c Config) bool { return c.HardwareIDCache.TTL > 0 },
		value: func(c Config) any { return c.HardwareIDCache.TTL },
	},
	{
		path:  "jobs.token_status_refresh",
		set:   func(c Config) bool { return c.Jobs.TokenStatusRefresh },
		value: func(c Config) any { return c.Jobs.TokenStatusRefresh },
	},
}

// layerMap renders the settings of cfg that keep reports true as a nested map.
func layerMap(cfg Config, keep func(configSetting) bool) map[string]any {
	layer := map[string]any{}
	for _, setting := range configSettings {
		if !keep(setting) {
			continue
		}
		node := layer
		parts := strings.Split(setting.path, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = setting.value(cfg)
	}
	return layer
}

// GoOptionsResolver merges defaults, the loaded file and runtime overrides
// with go-options. Runtime overrides only carry the settings they set.
type GoOptionsResolver struct{}

var _ ConfigSourceReporter = GoOptionsResolver{}

func (GoOptionsResolver) stack(defaults, loaded, runtime Config) (*opts.Options[map[string]any], error) {
	// loaded already sits on top of defaults, so its layer keeps every value
	// that differs from them, false included.
	layers := []struct {
		name     string
		priority int
		values   map[string]any
	}{
		{ConfigLayerDefaults, 0, layerMap(defaults, func(configSetting) bool { return true })},
		{ConfigLayerFile, 10, layerMap(loaded, func(s configSetting) bool { return s.value(loaded) != s.value(defaults) })},
		{ConfigLayerRuntime, 20, layerMap(runtime, func(s configSetting) bool { return s.set(runtime) })},
	}
	built := make([]opts.Layer[map[string]any], 0, len(layers))
	for _, layer := range layers {
		built = append(built, opts.NewLayer(
			opts.NewScope(layer.name, layer.priority),
			layer.values,
			opts.WithSnapshotID[map[string]any](layer.name),
		))
	}
	stack, err := opts.NewStack(built...)
	if err != nil {
		return nil, fmt.Errorf("core: config layers: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return nil, fmt.Errorf("core: config merge: %w", err)
	}
	return merged, nil
}

func (r GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	merged, err := r.stack(defaults, loaded, runtime)
	if err != nil {
		return Config{}, err
	}
	return buildConfig(merged.Value, defaults)
}

// Sources maps each setting path to the layer whose value won.
func (r GoOptionsResolver) Sources(defaults Config, loaded Config, runtime Config) (map[string]string, error) {
	merged, err := r.stack(defaults, loaded, runtime)
	if err != nil {
		return nil, err
	}
	sources := make(map[string]string, len(configSettings))
	for _, setting := range configSettings {
		_, trace, err := merged.ResolveWithTrace(setting.path)
		if err != nil {
			return nil, fmt.Errorf("core: trace %s: %w", setting.path, err)
		}
		for _, layer := range trace.Layers {
			if layer.Found {
				sources[setting.path] = layer.Scope.Name
				break
			}
		}
	}
	return sources, nil
}
