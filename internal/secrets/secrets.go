// Package secrets loads the deployer signing key.
package secrets

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// DefaultKeyEnvVar holds the hex-encoded deployer key when no source is configured.
	DefaultKeyEnvVar = "DEPLOYER_PRIVATE_KEY"

	envPrefix            = "env:"
	secretsManagerPrefix = "secretsmanager:"
)

var ErrNoKey = errors.New("no deployer key")

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Loader resolves key sources. The zero value reads env sources and
// connects to Secrets Manager lazily.
type Loader struct {
	Region string
	client secretsAPI
}

// LoadKey resolves source into a private key. source is "env:NAME",
// "secretsmanager:<secret-id>", or empty for env:DEPLOYER_PRIVATE_KEY.
func LoadKey(ctx context.Context, source, region string) (*ecdsa.PrivateKey, error) {
	l := &Loader{Region: region}
	return l.Load(ctx, source)
}

func (l *Loader) Load(ctx context.Context, source string) (*ecdsa.PrivateKey, error) {
	if source == "" {
		source = envPrefix + DefaultKeyEnvVar
	}

	var raw string
	switch {
	case strings.HasPrefix(source, envPrefix):
		name := strings.TrimPrefix(source, envPrefix)
		raw = os.Getenv(name)
		if raw == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrNoKey, name)
		}
	case strings.HasPrefix(source, secretsManagerPrefix):
		id := strings.TrimPrefix(source, secretsManagerPrefix)
		value, err := l.fetchSecret(ctx, id)
		if err != nil {
			return nil, err
		}
		raw = value
	default:
		return nil, fmt.Errorf("unknown key source %q", source)
	}

	return ParseKey(raw)
}

func (l *Loader) fetchSecret(ctx context.Context, id string) (string, error) {
	if l.client == nil {
		opts := []func(*config.LoadOptions) error{}
		if l.Region != "" {
			opts = append(opts, config.WithRegion(l.Region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return "", fmt.Errorf("failed to load AWS config: %w", err)
		}
		l.client = secretsmanager.NewFromConfig(cfg)
	}

	out, err := l.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", id, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%w: secret %s is empty", ErrNoKey, id)
	}
	return *out.SecretString, nil
}

// ParseKey parses a hex private key with or without a 0x prefix.
func ParseKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid deployer key: %w", err)
	}
	return key, nil
}
