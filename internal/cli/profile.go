package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"nations/internal/config"
)

// Profile is the saved CLI identity. Environment variables override saved values.
type Profile struct {
	APIBaseURL   string   `json:"api_base_url,omitempty"`
	APIToken     string   `json:"api_token,omitempty"`
	OwnerID      string   `json:"owner_id,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".nations")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func profilePath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

func SaveProfile(p Profile) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

// LoadProfile returns the saved profile, or an empty one when none exists.
func LoadProfile() (Profile, error) {
	path, err := profilePath()
	if err != nil {
		return Profile{}, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func ClearProfile() error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Resolve layers environment config over the saved profile.
func Resolve(saved Profile, env config.CLIConfig, envBaseSet bool) Profile {
	out := saved
	if envBaseSet || out.APIBaseURL == "" {
		out.APIBaseURL = env.APIBaseURL
	}
	if env.APIToken != "" {
		out.APIToken = env.APIToken
	}
	if env.OwnerID != "" {
		out.OwnerID = env.OwnerID
	}
	if len(env.Capabilities) > 0 {
		out.Capabilities = env.Capabilities
	}
	return out
}
