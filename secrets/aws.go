package secrets

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

type AWSConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

// session creates an AWS session. Without static keys, the default
// credential chain of the SDK is used.
func (cfg AWSConfig) session() (*session.Session, error) {
	awscfg := aws.NewConfig()

	if cfg.AccessKeyID != "" {
		awscfg = awscfg.WithCredentials(credentials.NewCredentials(&credentials.StaticProvider{
			Value: credentials.Value{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			},
		}))
	}

	if cfg.Endpoint != "" {
		awscfg = awscfg.WithEndpoint(cfg.Endpoint)
	}

	if cfg.Region != "" {
		awscfg = awscfg.WithRegion(cfg.Region)
	}

	sess, err := session.NewSession(awscfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}

	return sess, nil
}
