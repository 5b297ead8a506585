package wallet

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/config"
)

// SecretReader fetches a secret's latest version.
type SecretReader interface {
	Secret(ctx context.Context, project, name string) (string, error)
}

// LoadKey returns the configured private key. An inline key wins over the
// secret manager.
func LoadKey(ctx context.Context, cfg config.WalletConfig, secrets SecretReader) (string, error) {
	if cfg.PrivateKey != "" {
		return cfg.PrivateKey, nil
	}
	if cfg.GCPProject == "" || cfg.SecretName == "" {
		return "", apperror.New(apperror.CodeWalletNotConfigured)
	}
	if secrets == nil {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no secret reader"))
	}
	key, err := secrets.Secret(ctx, cfg.GCPProject, cfg.SecretName)
	if err != nil {
		return "", apperror.New(apperror.CodeSecretFetchFailed,
			apperror.WithCause(err),
			apperror.WithContext(cfg.SecretName))
	}
	return strings.TrimSpace(key), nil
}

// GCPSecrets reads secrets from Google Secret Manager.
type GCPSecrets struct {
	client *secretmanager.Client
}

// NewGCPSecrets connects with application default credentials.
func NewGCPSecrets(ctx context.Context) (*GCPSecrets, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}
	return &GCPSecrets{client: client}, nil
}

// Secret returns the latest version of name in project.
func (g *GCPSecrets) Secret(ctx context.Context, project, name string) (string, error) {
	res, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(res.GetPayload().GetData()), nil
}

// Close releases the client.
func (g *GCPSecrets) Close() error {
	return g.client.Close()
}
