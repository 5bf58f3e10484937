package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// adcFile is the subset of a gcloud application default credentials file
// needed to tell user credentials apart from service accounts.
type adcFile struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
}

func getADCPath() string {
	if p := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gcloud", "application_default_credentials.json")
}

// findApplicationDefaultCredentials returns the ADC path when it holds an
// authorized_user refresh token, or "" otherwise. Service account keys need
// a JWT flow and are not supported.
func findApplicationDefaultCredentials() string {
	path := getADCPath()
	if path == "" {
		return ""
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if !isAuthorizedUser(content) {
		return ""
	}
	return path
}

func isAuthorizedUser(content []byte) bool {
	var f adcFile
	if err := json.Unmarshal(content, &f); err != nil {
		return false
	}
	return f.Type == "authorized_user" && f.ClientID != "" && f.RefreshToken != ""
}
