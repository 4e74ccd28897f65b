package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI defines the Secrets Manager operations used by the store.
type SecretsManagerAPI interface {
	// GetSecretValue retrieves a secret value.
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretStore reads API tokens and keys from AWS Secrets Manager.
type SecretStore struct {
	// client is the Secrets Manager API client.
	client SecretsManagerAPI
}

// NewSecretStore creates a new Secrets Manager-backed secret store.
func NewSecretStore(client SecretsManagerAPI) (*SecretStore, error) {
	if client == nil {
		return nil, errors.New("secrets manager client is required")
	}

	return &SecretStore{client: client}, nil
}

// Value returns the string value of a secret.
func (s *SecretStore) Value(ctx context.Context, secretARN string) (string, error) {
	if secretARN == "" {
		return "", errors.New("secret ARN is required")
	}

	output, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret from Secrets Manager: %w", err)
	}

	if output.SecretString == nil {
		return "", errors.New("secret has no string value")
	}
	return *output.SecretString, nil
}

// SecretToken adapts one Secrets Manager secret to a token source.
type SecretToken struct {
	// secretARN is the ARN of the secret holding the token.
	secretARN string

	// store is the secret store.
	store *SecretStore
}

// NewSecretToken creates a token source backed by one secret.
func NewSecretToken(store *SecretStore, secretARN string) (*SecretToken, error) {
	if store == nil {
		return nil, errors.New("secret store is required")
	}
	if secretARN == "" {
		return nil, errors.New("secret ARN is required")
	}

	return &SecretToken{secretARN: secretARN, store: store}, nil
}

// Token returns the secret value.
func (t *SecretToken) Token(ctx context.Context) (string, error) {
	return t.store.Value(ctx, t.secretARN)
}
