package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

var _ SecretStorage = &AWSSecretsManager{}

type AWSSecretsManager struct {
	client *secretsmanager.SecretsManager
}

func NewAWSSecretsManagerFromConfig(cfg AWSConfig) (*AWSSecretsManager, error) {
	sess, err := cfg.session()
	if err != nil {
		return nil, err
	}

	return NewAWSSecretsManager(secretsmanager.New(sess)), nil
}

func NewAWSSecretsManager(client *secretsmanager.SecretsManager) *AWSSecretsManager {
	return &AWSSecretsManager{
		client: client,
	}
}

// GetSecret
// must have permission secretsmanager:GetSecretValue
// kms:Decrypt - required only if you use a customer-managed Amazon Web Services KMS key to encrypt the secret
func (s *AWSSecretsManager) GetSecret(ctx context.Context, name string) (secret []byte, err error) {
	name = strings.ReplaceAll(name, ":", "_")

	sec, err := s.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			if aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
				return nil, ErrNotFound
			}
		}

		return nil, fmt.Errorf("aws sm: get secret: %w", err)
	}

	if sec.SecretString != nil {
		return []byte(*sec.SecretString), nil
	}

	return sec.SecretBinary, nil
}
