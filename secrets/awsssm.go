package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ssm"
)

var _ SecretStorage = &AWSSSM{}

// AWSSSM is the AWS System Manager Parameter Store (aka SSM PS)
type AWSSSM struct {
	client *ssm.SSM
}

func NewAWSSSMSecretProviderFromConfig(cfg AWSConfig) (*AWSSSM, error) {
	sess, err := cfg.session()
	if err != nil {
		return nil, err
	}

	return NewAWSSSM(ssm.New(sess)), nil
}

func NewAWSSSM(client *ssm.SSM) *AWSSSM {
	return &AWSSSM{
		client: client,
	}
}

var invalidSecretNameChars = regexp.MustCompile(`[^a-zA-Z0-9_./-]`)

// GetSecret reads a SecureString, or any other parameter, decrypted.
// must have permission ssm:GetParameter
// kms:Decrypt - required only if the parameter uses a customer-managed key
func (s *AWSSSM) GetSecret(ctx context.Context, name string) (secret []byte, err error) {
	name = invalidSecretNameChars.ReplaceAllString(name, "_")

	p, err := s.client.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			if aerr.Code() == ssm.ErrCodeParameterNotFound {
				return nil, ErrNotFound
			}
		}

		return nil, fmt.Errorf("ssm: get secret: %w", err)
	}

	if p.Parameter == nil || p.Parameter.Value == nil {
		return nil, ErrNotFound
	}

	return []byte(*p.Parameter.Value), nil
}
