package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// APIKeyField is the JSON field read when a secret holds a JSON object
const APIKeyField = "api_key"

type SecretManager struct {
	svc secretsmanageriface.SecretsManagerAPI
}

func NewSecretManager(svc secretsmanageriface.SecretsManagerAPI) *SecretManager {
	return &SecretManager{svc: svc}
}

// NewAWSSecretManager opens a Secrets Manager session in region
func NewAWSSecretManager(region string) (*SecretManager, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewSecretManager(secretsmanager.New(sess)), nil
}

// GetSecretValue returns the string value of secretID
func (s *SecretManager) GetSecretValue(ctx context.Context, secretID string) (string, error) {
	result, err := s.svc.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", secretID, err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}
	return *result.SecretString, nil
}

// ProviderAPIKey resolves the provider key stored under secretID.
// The secret is either the bare key or a JSON object with an "api_key" field.
func (s *SecretManager) ProviderAPIKey(ctx context.Context, secretID string) (string, error) {
	value, err := s.GetSecretValue(ctx, secretID)
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "{") {
		return value, nil
	}

	var doc map[string]string
	if err := json.Unmarshal([]byte(value), &doc); err != nil {
		return "", fmt.Errorf("secret %s: %w", secretID, err)
	}
	key := strings.TrimSpace(doc[APIKeyField])
	if key == "" {
		return "", errors.New("secret " + secretID + " has no " + APIKeyField + " field")
	}
	return key, nil
}
