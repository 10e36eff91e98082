package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"golang.org/x/net/context"
)

// AzureSigningHelper produces SAS URLs for single blobs. It holds only
// immutable configuration and is safe for concurrent use.
type AzureSigningHelper struct {
	mode        SigningMode
	blobService BlobService
	logger      *slog.Logger
	observer    Observer
	now         func() time.Time
}

// NewAzureSigningHelper builds a helper for one of the Azure auth handlers.
func NewAzureSigningHelper(handler ProxyAuthHandler, options *SigningHelperOptions) (*AzureSigningHelper, error) {
	azureHandler, ok := handler.(azureAuthHandler)
	if !ok {
		return nil, newError(KindInvalidConfiguration,
			fmt.Sprintf("auth handler %T does not configure Azure Blob Storage", handler), nil)
	}
	blobService, err := azureHandler.createBlobService()
	if err != nil {
		return nil, err
	}
	return newAzureSigningHelper(azureHandler.signingMode(), blobService, options), nil
}

func NewAzureSigningHelperFromConnectionString(connectionString string,
	options *SigningHelperOptions) (*AzureSigningHelper, error) {
	return NewAzureSigningHelper(ProxyAuthHandlerAzureConnectionString{ConnectionString: connectionString}, options)
}

func NewAzureSigningHelperFromIdentity(accountName string, options *SigningHelperOptions) (*AzureSigningHelper, error) {
	return NewAzureSigningHelper(ProxyAuthHandlerAzureIdentity{AccountName: accountName}, options)
}

func newAzureSigningHelper(mode SigningMode, blobService BlobService, options *SigningHelperOptions) *AzureSigningHelper {
	return &AzureSigningHelper{
		mode:        mode,
		blobService: blobService,
		logger:      options.logger().With(slog.String("provider", "azure"), slog.String("mode", mode.String())),
		observer:    options.observer(),
		now:         time.Now,
	}
}

func (az *AzureSigningHelper) Mode() SigningMode {
	return az.mode
}

func (az *AzureSigningHelper) GenerateSignedURL(ctx context.Context, containerName string, objectName string,
	options *SignedURLOptions) (string, error) {
	ctx, span := startSpan(ctx, "storage.GenerateSignedURL", "azure", az.mode)
	defer span.End()
	start := time.Now()

	signedURL, err := az.generateSignedURL(ctx, ObjectLocator{ContainerName: containerName, ObjectName: objectName}, options)
	az.observer.RecordOperation(operationSign, az.mode, time.Since(start), err)
	endSpan(span, err)
	return signedURL, err
}

func (az *AzureSigningHelper) GenerateSignedURLFromFullURL(ctx context.Context, objectURL string,
	options *SignedURLOptions) (string, error) {
	locator, err := ParseObjectURL(objectURL)
	if err != nil {
		return "", err
	}
	return az.GenerateSignedURL(ctx, locator.ContainerName, locator.ObjectName, options)
}

func (az *AzureSigningHelper) generateSignedURL(ctx context.Context, locator ObjectLocator,
	options *SignedURLOptions) (string, error) {
	if err := locator.validate(); err != nil {
		return "", signingFailed(err)
	}
	request, err := options.resolve(locator)
	if err != nil {
		return "", signingFailed(err)
	}

	existence, err := az.checkExistence(ctx, locator)
	switch existence {
	case ExistenceNotFound:
		return "", signingFailed(newError(KindObjectNotFound,
			fmt.Sprintf("blob '%s' not found in container '%s'", locator.ObjectName, locator.ContainerName), nil))
	case ExistenceCheckFailed:
		return "", signingFailed(err)
	}

	var signedURL string
	switch az.mode {
	case SigningModeDelegatedIdentity:
		signedURL, err = az.signWithUserDelegationKey(ctx, request)
	default:
		signedURL, err = az.signWithAccountKey(request)
	}
	if err != nil {
		return "", signingFailed(err)
	}
	az.logger.DebugContext(ctx, "generated signed URL",
		slog.String("object", locator.String()),
		slog.String("permissions", request.permissions.String()),
		slog.Duration("expiry", request.expiry))
	return signedURL, nil
}

func (az *AzureSigningHelper) signWithUserDelegationKey(ctx context.Context, request signingRequest) (string, error) {
	now := az.now().UTC()
	lease := DelegationKeyLease{ValidFrom: now, ValidUntil: now.Add(request.expiry)}
	credential, err := az.blobService.GetUserDelegationCredential(ctx, lease)
	if err != nil {
		return "", err
	}
	values := sas.BlobSignatureValues{
		ContainerName: request.locator.ContainerName,
		BlobName:      request.locator.ObjectName,
		StartTime:     lease.ValidFrom,
		ExpiryTime:    lease.ValidUntil,
		Permissions:   request.permissions.blobPermissions(),
	}
	query, err := az.blobService.SignWithUserDelegation(values, credential)
	if err != nil {
		return "", err
	}
	return az.blobService.BlobURL(request.locator) + "?" + query, nil
}

func (az *AzureSigningHelper) signWithAccountKey(request signingRequest) (string, error) {
	signedURL, err := az.blobService.SharedKeySASURL(request.locator, request.permissions.sasPermissions(),
		az.now().UTC().Add(request.expiry))
	if isMissingSharedKey(err) {
		return "", newError(KindSigningNotSupported,
			"cannot generate SAS URL: use a connection string that carries an account key", err)
	}
	return signedURL, err
}

// CheckObjectExistence reports whether the blob exists. The error is set only
// for ExistenceCheckFailed.
func (az *AzureSigningHelper) CheckObjectExistence(ctx context.Context, containerName string,
	objectName string) (Existence, error) {
	ctx, span := startSpan(ctx, "storage.CheckObjectExistence", "azure", az.mode)
	defer span.End()
	start := time.Now()

	existence, err := az.checkExistence(ctx, ObjectLocator{ContainerName: containerName, ObjectName: objectName})
	az.observer.RecordOperation(operationExists, az.mode, time.Since(start), err)
	endSpan(span, err)
	return existence, err
}

func (az *AzureSigningHelper) checkExistence(ctx context.Context, locator ObjectLocator) (Existence, error) {
	_, err := az.blobService.GetProperties(ctx, locator)
	if err == nil {
		return ExistenceExists, nil
	}
	if isBlobNotFound(err) {
		return ExistenceNotFound, nil
	}
	return ExistenceCheckFailed, err
}

// ObjectExists collapses CheckObjectExistence to a bool; a failed check is
// reported as false.
func (az *AzureSigningHelper) ObjectExists(ctx context.Context, containerName string, objectName string) bool {
	existence, err := az.CheckObjectExistence(ctx, containerName, objectName)
	if err != nil {
		az.logger.DebugContext(ctx, "existence check failed",
			slog.String("object", containerName+"/"+objectName),
			slog.Any("error", err))
	}
	return existence == ExistenceExists
}

// GetObjectProperties returns blob properties; SDK errors are returned as is.
func (az *AzureSigningHelper) GetObjectProperties(ctx context.Context, containerName string,
	objectName string) (ObjectProperties, error) {
	return az.blobService.GetProperties(ctx, ObjectLocator{ContainerName: containerName, ObjectName: objectName})
}

func signingFailed(err error) error {
	return wrapError(fmt.Sprintf("unable to generate signed URL: %s", err.Error()), err)
}
