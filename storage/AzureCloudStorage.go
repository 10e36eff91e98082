package storage

import (
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"golang.org/x/net/context"
)

// BlobService is the set of Azure Blob Storage primitives the signing helper
// builds on. The signature algorithm itself lives in the SDK.
type BlobService interface {
	BlobURL(locator ObjectLocator) string
	GetProperties(ctx context.Context, locator ObjectLocator) (ObjectProperties, error)
	// SharedKeySASURL signs with the account key held by the client. It fails
	// with bloberror.MissingSharedKeyCredential when the client has none.
	SharedKeySASURL(locator ObjectLocator, permissions sas.BlobPermissions, expiry time.Time) (string, error)
	GetUserDelegationCredential(ctx context.Context, lease DelegationKeyLease) (*service.UserDelegationCredential, error)
	SignWithUserDelegation(values sas.BlobSignatureValues, credential *service.UserDelegationCredential) (string, error)
}

//implements BlobService

type azureBlobService struct {
	serviceClient *service.Client
}

// Every call is a single attempt; failures surface to the caller unretried.
func clientOptions() *azblob.ClientOptions {
	return &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
}

func newAzureBlobServiceFromConnectionString(connectionString string) (*azureBlobService, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, clientOptions())
	if err != nil {
		return nil, newError(KindInvalidConfiguration,
			"unable to create Azure blob service client from connection string", err)
	}
	return &azureBlobService{serviceClient: client.ServiceClient()}, nil
}

func newAzureBlobServiceFromCredential(accountURL string, credential azcore.TokenCredential) (*azureBlobService, error) {
	client, err := azblob.NewClient(accountURL, credential, clientOptions())
	if err != nil {
		return nil, newError(KindInvalidConfiguration, "unable to create Azure blob service client", err)
	}
	return &azureBlobService{serviceClient: client.ServiceClient()}, nil
}

func (az *azureBlobService) blobClient(locator ObjectLocator) *blob.Client {
	return az.serviceClient.NewContainerClient(locator.ContainerName).NewBlobClient(locator.ObjectName)
}

func (az *azureBlobService) BlobURL(locator ObjectLocator) string {
	return az.blobClient(locator).URL()
}

func (az *azureBlobService) GetProperties(ctx context.Context, locator ObjectLocator) (ObjectProperties, error) {
	resp, err := az.blobClient(locator).GetProperties(ctx, nil)
	if err != nil {
		return ObjectProperties{}, err
	}
	properties := ObjectProperties{Metadata: make(map[string]string, len(resp.Metadata))}
	if resp.ContentLength != nil {
		properties.ContentLength = *resp.ContentLength
	}
	if resp.ContentType != nil {
		properties.ContentType = *resp.ContentType
	}
	if resp.ETag != nil {
		properties.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		properties.LastModified = *resp.LastModified
	}
	for key, value := range resp.Metadata {
		if value != nil {
			properties.Metadata[key] = *value
		}
	}
	return properties, nil
}

// The window has no explicit start; the service treats the signature as valid
// from issue.
func (az *azureBlobService) SharedKeySASURL(locator ObjectLocator, permissions sas.BlobPermissions,
	expiry time.Time) (string, error) {
	return az.blobClient(locator).GetSASURL(permissions, expiry, nil)
}

func (az *azureBlobService) GetUserDelegationCredential(ctx context.Context,
	lease DelegationKeyLease) (*service.UserDelegationCredential, error) {
	info := service.KeyInfo{
		Start:  to.Ptr(lease.ValidFrom.UTC().Format(sas.TimeFormat)),
		Expiry: to.Ptr(lease.ValidUntil.UTC().Format(sas.TimeFormat)),
	}
	return az.serviceClient.GetUserDelegationCredential(ctx, info, nil)
}

func (az *azureBlobService) SignWithUserDelegation(values sas.BlobSignatureValues,
	credential *service.UserDelegationCredential) (string, error) {
	queryParameters, err := values.SignWithUserDelegation(credential)
	if err != nil {
		return "", err
	}
	return queryParameters.Encode(), nil
}

func isBlobNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

func isMissingSharedKey(err error) bool {
	return errors.Is(err, bloberror.MissingSharedKeyCredential)
}
