package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/pkg/logger"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used by AWSStore.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSStore struct {
	api SecretsManagerAPI
}

func NewAWSStore(cfg aws.Config) *AWSStore {
	return &AWSStore{api: secretsmanager.NewFromConfig(cfg)}
}

func NewAWSStoreWithAPI(api SecretsManagerAPI) *AWSStore {
	return &AWSStore{api: api}
}

func (s *AWSStore) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "ResourceNotFoundException":
				return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
			case "AccessDeniedException":
				return "", fmt.Errorf("%w: %s", ErrAccessDenied, name)
			}
		}
		logger.Error("Failed to read secret", zap.String("secret", name), zap.Error(err))
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}

	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%w: %s has no string value", ErrSecretNotFound, name)
	}
	return *out.SecretString, nil
}
