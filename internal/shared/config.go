package shared

import (
	"encoding/json"
	"os"
)

// CtlConfig is the lbctl client configuration, stored as JSON so a machine
// can keep credentials out of shell history.
type CtlConfig struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token"`
	NATSURL   string `json:"nats_url,omitempty"`
}

func LoadCtlConfig(path string) (*CtlConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c CtlConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8080"
	}
	return &c, nil
}

func SaveCtlConfig(path string, c *CtlConfig) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}
