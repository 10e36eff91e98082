package secrets

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"golang.org/x/net/context"
)

type AzureCloudSecretsProxy struct {
	secretServicesClient *azsecrets.Client
	cache                *secretCache
}

func (handler ProxyAuthHandlerAzureDefaultIdentity) createSecretsClient(options *CloudSecretsCacheOptions) (CloudSecretsProxy, error) {
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, wrapError("unable to obtain default Azure credential", err)
	}
	return createProxyFromCredential(handler.KeyVaultURL, credential, options)
}

func (handler ProxyAuthHandlerAzureClientSecretIdentity) createSecretsClient(options *CloudSecretsCacheOptions) (CloudSecretsProxy, error) {
	credential, err := azidentity.NewClientSecretCredential(handler.TenantID, handler.ClientID,
		handler.ClientSecret, nil)
	if err != nil {
		return nil, wrapError("unable to create client secret credential", err)
	}
	return createProxyFromCredential(handler.KeyVaultURL, credential, options)
}

func createProxyFromCredential(vaultURL string, credential azcore.TokenCredential, options *CloudSecretsCacheOptions) (CloudSecretsProxy, error) {
	if vaultURL == "" {
		return nil, wrapError("key vault URL must not be empty", nil)
	}
	client, err := azsecrets.NewClient(vaultURL, credential, nil)
	if err != nil {
		return nil, wrapError("unable to create Azure KeyVault service client", err)
	}
	az := &AzureCloudSecretsProxy{secretServicesClient: client}
	az.cache = newSecretCache(options, az.fetchSecret)
	return az, nil
}

func (az *AzureCloudSecretsProxy) fetchSecret(ctx context.Context, name string) (string, error) {
	resp, err := az.secretServicesClient.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", err
	}
	if resp.Value == nil {
		return "", wrapError("secret "+name+" has no value", nil)
	}
	return *resp.Value, nil
}

func (az *AzureCloudSecretsProxy) GetSecret(ctx context.Context, name string) (string, error) {
	return az.cache.get(ctx, name)
}
