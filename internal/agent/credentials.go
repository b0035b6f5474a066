package agent

import "insight-report/internal/config"

const (
	EnvOAuthToken = "CLAUDE_CODE_OAUTH_TOKEN"
	EnvAuthToken  = "ANTHROPIC_AUTH_TOKEN"
	EnvAPIKey     = "ANTHROPIC_API_KEY"
	EnvBaseURL    = "ANTHROPIC_BASE_URL"
)

// credentialVars lists every variable BuildCredentialEnv may set. The runner
// strips them from the inherited environment so only the configured
// credential reaches the agent.
var credentialVars = []string{EnvOAuthToken, EnvAuthToken, EnvAPIKey, EnvBaseURL}

// BuildCredentialEnv synthesizes the agent's credential environment for the
// configured auth type.
func BuildCredentialEnv(auth config.AuthConfig) map[string]string {
	env := make(map[string]string)
	switch auth.Type {
	case "oauth":
		env[EnvOAuthToken] = auth.Token
	case "litellm", "custom":
		env[EnvAuthToken] = auth.Token
		if auth.BaseURL != "" {
			env[EnvBaseURL] = auth.BaseURL
		}
	case "apikey":
		env[EnvAPIKey] = auth.Token
		if auth.BaseURL != "" {
			env[EnvBaseURL] = auth.BaseURL
		}
	}
	return env
}
