package secrets

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/net/context"
)

type AWSCloudSecretsProxy struct {
	secretServicesClient *secretsmanager.Client
	cache                *secretCache
}

func (handler ProxyAuthHandlerAWSDefaultIdentity) createSecretsClient(options *CloudSecretsCacheOptions) (CloudSecretsProxy, error) {
	return newAWSSecretsProxy(handler.Region, options)
}

func (handler ProxyAuthHandlerAWSConfiguredIdentity) createSecretsClient(options *CloudSecretsCacheOptions) (CloudSecretsProxy, error) {
	if handler.AccessID == "" || handler.AccessKey == "" {
		return nil, wrapError("access id and access key must not be empty", nil)
	}
	return newAWSSecretsProxy(handler.Region, options,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(handler.AccessID, handler.AccessKey, "")))
}

func newAWSSecretsProxy(region string, options *CloudSecretsCacheOptions,
	loadOptions ...func(*config.LoadOptions) error) (CloudSecretsProxy, error) {
	if region != "" {
		loadOptions = append(loadOptions, config.WithRegion(region))
	}
	awsConfig, err := config.LoadDefaultConfig(context.TODO(), loadOptions...)
	if err != nil {
		return nil, wrapError("unable to create Secrets Manager service client", err)
	}
	return createProxyFromConfig(region, &awsConfig, options), nil
}

func createProxyFromConfig(accountRegion string, awsConfig *aws.Config, options *CloudSecretsCacheOptions) CloudSecretsProxy {
	client := secretsmanager.NewFromConfig(*awsConfig, func(o *secretsmanager.Options) {
		if accountRegion != "" {
			o.Region = accountRegion
		}
	})
	aw := &AWSCloudSecretsProxy{secretServicesClient: client}
	aw.cache = newSecretCache(options, aw.fetchSecret)
	return aw
}

func (aw *AWSCloudSecretsProxy) fetchSecret(ctx context.Context, name string) (string, error) {
	resp, err := aw.secretServicesClient.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", err
	}
	if resp.SecretString != nil {
		return *resp.SecretString, nil
	}
	if resp.SecretBinary != nil {
		return string(resp.SecretBinary), nil
	}
	return "", wrapError("secret "+name+" has no value", nil)
}

func (aw *AWSCloudSecretsProxy) GetSecret(ctx context.Context, name string) (string, error) {
	return aw.cache.get(ctx, name)
}
