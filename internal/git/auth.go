package git

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// Environment variables read by AuthFromEnv.
const (
	EnvToken  = "VERIFYBUILD_GIT_TOKEN"
	EnvSSHKey = "VERIFYBUILD_GIT_SSH_KEY"
)

// AuthFromEnv returns credentials for url, or nil for anonymous access.
func AuthFromEnv(url string) (transport.AuthMethod, error) {
	if isSSH(url) {
		keyPath := os.Getenv(EnvSSHKey)
		if keyPath == "" {
			return nil, nil
		}
		keys, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from %s: %w", keyPath, err)
		}
		return keys, nil
	}
	if token := os.Getenv(EnvToken); token != "" {
		return &http.BasicAuth{Username: "token", Password: token}, nil
	}
	return nil, nil
}

func isSSH(url string) bool {
	return strings.HasPrefix(url, "ssh://") || (strings.Contains(url, "@") && !strings.Contains(url, "://"))
}
