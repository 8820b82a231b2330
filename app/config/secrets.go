package config

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// ResolveJWTSecret returns JWT_SECRET, or when JWT_SECRET_ID is set, the
// latest version of that secret from Secret Manager.
func ResolveJWTSecret(ctx context.Context, cfg Config) (string, error) {
	if cfg.JWTSecretID == "" {
		if cfg.JWTSecret == "" {
			return "", fmt.Errorf("config: JWT_SECRET or JWT_SECRET_ID must be set")
		}
		return cfg.JWTSecret, nil
	}
	if cfg.ProjectID == "" {
		return "", fmt.Errorf("config: JWT_SECRET_ID requires GOOGLE_CLOUD_PROJECT")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("secret manager client: %w", err)
	}
	defer client.Close()

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", cfg.ProjectID, cfg.JWTSecretID)
	resp, err := client.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", cfg.JWTSecretID, err)
	}
	return string(resp.Payload.Data), nil
}
