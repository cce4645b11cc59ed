package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/lysyi3m/clubfeed/app/stream"
	"gopkg.in/yaml.v3"
)

const (
	defaultLikeType   = "post"
	defaultDeletePath = "/post/delete"
)

type ConfigCache struct {
	streamsDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(streamsDir string) *ConfigCache {
	return &ConfigCache{
		streamsDir: streamsDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.streamsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.streamsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		streamName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(streamName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "stream", streamName, "source", config.Source, "enabled", config.Settings.Enabled, "page_size", config.Settings.PageSize)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(streamName string) (*Config, error) {
	configFile := cc.getConfigFilePath(streamName)
	streamConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	// Set stream name from parameter
	streamConfig.Name = streamName

	if err := cc.validateConfig(streamConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[streamConfig.Name] = streamConfig

	return streamConfig, nil
}

func (cc *ConfigCache) GetConfig(streamName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	streamConfig, ok := cc.cache[streamName]
	if !ok {
		return nil, fmt.Errorf("stream config with name '%s' not found", streamName)
	}
	return streamConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var streamConfig Config
	if err := yaml.Unmarshal(data, &streamConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if streamConfig.Source == "" {
		streamConfig.Source = SourceREST
	}
	if streamConfig.Settings.PageSize == 0 {
		streamConfig.Settings.PageSize = stream.DefaultPageSize
	}
	if streamConfig.Settings.Timeout == 0 {
		streamConfig.Settings.Timeout = 30
	}
	if streamConfig.Actions.LikeType == "" {
		streamConfig.Actions.LikeType = defaultLikeType
	}
	if streamConfig.Actions.Delete == "" {
		streamConfig.Actions.Delete = defaultDeletePath
	}

	return &streamConfig, nil
}

// validateConfig reports every problem in the file at once.
func (cc *ConfigCache) validateConfig(streamConfig *Config) error {
	if streamConfig == nil {
		return fmt.Errorf("streamConfig is nil")
	}

	var result *multierror.Error

	if streamConfig.Name == "" {
		result = multierror.Append(result, fmt.Errorf("stream name is required"))
	}
	if strings.Contains(streamConfig.Name, "/") {
		result = multierror.Append(result, fmt.Errorf("stream name must not contain '/'"))
	}

	requiredFields := map[string]map[string]string{
		SourceREST:  {"path": streamConfig.Path},
		SourceRSS:   {"url": streamConfig.URL},
		SourceSaved: {},
	}

	fields, ok := requiredFields[streamConfig.Source]
	if !ok {
		result = multierror.Append(result, fmt.Errorf("unknown source %q", streamConfig.Source))
	}
	for fieldName, fieldValue := range fields {
		if fieldValue == "" {
			result = multierror.Append(result, fmt.Errorf("%s is required for %s streams", fieldName, streamConfig.Source))
		}
	}

	positiveFields := map[string]int{
		"page size": streamConfig.Settings.PageSize,
		"timeout":   streamConfig.Settings.Timeout,
	}
	for fieldName, fieldValue := range positiveFields {
		if fieldValue < 0 {
			result = multierror.Append(result, fmt.Errorf("%s must be positive", fieldName))
		}
	}

	if streamConfig.Settings.FirstPage < 0 {
		result = multierror.Append(result, fmt.Errorf("first page must be non-negative"))
	}

	for name, path := range streamConfig.Actions.Remove {
		if name == stream.ActionDelete {
			result = multierror.Append(result, fmt.Errorf("remove action %q clashes with actions.delete", name))
		}
		if !strings.HasPrefix(path, "/") {
			result = multierror.Append(result, fmt.Errorf("remove action %q needs an endpoint path starting with '/'", name))
		}
	}

	return result.ErrorOrNil()
}

func (cc *ConfigCache) getConfigFilePath(streamName string) string {
	return filepath.Join(cc.streamsDir, streamName+".yml")
}
