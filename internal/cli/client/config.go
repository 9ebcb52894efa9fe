package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GlobalConfig is the stored CLI login in config.json.
type GlobalConfig struct {
	APIKey string `json:"api_key,omitempty"`
	APIURL string `json:"api_url"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "autoreply"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetConfigPath returns the full path to the config.json file
func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig reads config.json. A missing file yields a nil config and
// no error.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveGlobalConfig writes the config to config.json with 0600 permissions
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DeleteGlobalConfig removes the config.json file
func DeleteGlobalConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}

	return nil
}

// CredentialSource represents where credentials came from
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceDefault      CredentialSource = "default"
)

// ResolveCredentials applies the cascade flag, then environment, then
// config.json, then the default URL. The key may legitimately be empty when
// the server runs without one.
func ResolveCredentials(flagAPIKey, flagAPIURL string) (source CredentialSource, apiKey, apiURL string, err error) {
	apiKey, apiURL = flagAPIKey, flagAPIURL
	source = SourceDefault
	if apiKey != "" || apiURL != "" {
		source = SourceFlag
	}

	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}
	if apiURL == "" {
		apiURL = os.Getenv(envAPIURL)
	}
	if source == SourceDefault && (apiKey != "" || apiURL != "") {
		source = SourceEnv
	}

	if apiKey == "" || apiURL == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return "", "", "", err
		}
		if global != nil {
			if apiKey == "" && global.APIKey != "" {
				apiKey = global.APIKey
			}
			if apiURL == "" && global.APIURL != "" {
				apiURL = global.APIURL
			}
			if source == SourceDefault {
				source = SourceGlobalConfig
			}
		}
	}

	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return source, apiKey, apiURL, nil
}
