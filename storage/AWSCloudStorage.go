package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3 rejects presigned URLs valid for longer than seven days.
const maxPresignExpiry = 7 * 24 * time.Hour

// S3SigningHelper produces presigned S3 URLs with the same contract as
// AzureSigningHelper. A presigned URL authorizes exactly one HTTP method, so
// the permission set must map to a single operation.
type S3SigningHelper struct {
	mode             SigningMode
	s3ServicesClient *s3.Client
	presignClient    *s3.PresignClient
	logger           *slog.Logger
	observer         Observer
}

func NewS3SigningHelper(handler ProxyAuthHandler, options *SigningHelperOptions) (*S3SigningHelper, error) {
	var awsConfig aws.Config
	var err error
	var accountURL, region string
	var mode SigningMode
	switch h := handler.(type) {
	case ProxyAuthHandlerAWSDefaultIdentity:
		accountURL, region, mode = h.AccountURL, h.Region, SigningModeCredentialChain
		awsConfig, err = config.LoadDefaultConfig(context.TODO(), regionOption(region)...)
	case ProxyAuthHandlerAWSConfiguredIdentity:
		if h.AccessID == "" || h.AccessKey == "" {
			return nil, newError(KindInvalidConfiguration, "access id and access key must not be empty", nil)
		}
		accountURL, region, mode = h.AccountURL, h.Region, SigningModeSharedKey
		awsConfig, err = config.LoadDefaultConfig(context.TODO(), append(regionOption(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(h.AccessID, h.AccessKey, "")))...)
	default:
		return nil, newError(KindInvalidConfiguration,
			fmt.Sprintf("auth handler %T does not configure S3", handler), nil)
	}
	if err != nil {
		return nil, newError(KindInvalidConfiguration, "unable to create S3 service client", err)
	}
	return createProxyFromConfig(accountURL, &awsConfig, mode, options), nil
}

func regionOption(region string) []func(*config.LoadOptions) error {
	if region == "" {
		return nil
	}
	return []func(*config.LoadOptions) error{config.WithRegion(region)}
}

func createProxyFromConfig(accountURL string, awsConfig *aws.Config, mode SigningMode,
	options *SigningHelperOptions) *S3SigningHelper {
	client := s3.NewFromConfig(*awsConfig, func(o *s3.Options) {
		if accountURL != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(accountURL)
		}
		o.Retryer = aws.NopRetryer{}
	})
	return &S3SigningHelper{
		mode:             mode,
		s3ServicesClient: client,
		presignClient:    s3.NewPresignClient(client),
		logger:           options.logger().With(slog.String("provider", "s3"), slog.String("mode", mode.String())),
		observer:         options.observer(),
	}
}

func (aw *S3SigningHelper) Mode() SigningMode {
	return aw.mode
}

func (aw *S3SigningHelper) GenerateSignedURL(ctx context.Context, containerName string, objectName string,
	options *SignedURLOptions) (string, error) {
	ctx, span := startSpan(ctx, "storage.GenerateSignedURL", "s3", aw.mode)
	defer span.End()
	start := time.Now()

	signedURL, err := aw.generateSignedURL(ctx, ObjectLocator{ContainerName: containerName, ObjectName: objectName}, options)
	aw.observer.RecordOperation(operationSign, aw.mode, time.Since(start), err)
	endSpan(span, err)
	return signedURL, err
}

func (aw *S3SigningHelper) GenerateSignedURLFromFullURL(ctx context.Context, objectURL string,
	options *SignedURLOptions) (string, error) {
	locator, err := ParseObjectURL(objectURL)
	if err != nil {
		return "", err
	}
	return aw.GenerateSignedURL(ctx, locator.ContainerName, locator.ObjectName, options)
}

func (aw *S3SigningHelper) generateSignedURL(ctx context.Context, locator ObjectLocator,
	options *SignedURLOptions) (string, error) {
	if err := locator.validate(); err != nil {
		return "", signingFailed(err)
	}
	request, err := options.resolve(locator)
	if err != nil {
		return "", signingFailed(err)
	}
	method, err := presignMethod(request)
	if err != nil {
		return "", signingFailed(err)
	}

	existence, err := aw.checkExistence(ctx, locator)
	switch existence {
	case ExistenceNotFound:
		return "", signingFailed(newError(KindObjectNotFound,
			fmt.Sprintf("object '%s' not found in bucket '%s'", locator.ObjectName, locator.ContainerName), nil))
	case ExistenceCheckFailed:
		return "", signingFailed(err)
	}

	expires := func(o *s3.PresignOptions) {
		o.Expires = request.expiry
	}
	var presigned *v4.PresignedHTTPRequest
	switch method {
	case http.MethodGet:
		presigned, err = aw.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(locator.ContainerName),
			Key:    aws.String(locator.ObjectName),
		}, expires)
	case http.MethodPut:
		presigned, err = aw.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(locator.ContainerName),
			Key:    aws.String(locator.ObjectName),
		}, expires)
	case http.MethodDelete:
		presigned, err = aw.presignClient.PresignDeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(locator.ContainerName),
			Key:    aws.String(locator.ObjectName),
		}, expires)
	}
	if err != nil {
		return "", signingFailed(wrapError("could not obtain presigned url", err))
	}
	aw.logger.DebugContext(ctx, "generated presigned URL",
		slog.String("object", locator.String()),
		slog.String("method", method),
		slog.Duration("expiry", request.expiry))
	return presigned.URL, nil
}

func presignMethod(request signingRequest) (string, error) {
	if request.expiry > maxPresignExpiry {
		return "", newError(KindSigningNotSupported,
			fmt.Sprintf("presigned URLs cannot outlive %s, requested %s", maxPresignExpiry, request.expiry), nil)
	}
	writeFlags := PermissionWrite | PermissionAdd | PermissionCreate
	switch p := request.permissions; {
	case p == PermissionRead:
		return http.MethodGet, nil
	case p&^writeFlags == 0:
		return http.MethodPut, nil
	case p == PermissionDelete:
		return http.MethodDelete, nil
	default:
		return "", newError(KindSigningNotSupported,
			fmt.Sprintf("permissions %q do not map to a single S3 operation", p.String()), nil)
	}
}

func (aw *S3SigningHelper) CheckObjectExistence(ctx context.Context, containerName string,
	objectName string) (Existence, error) {
	ctx, span := startSpan(ctx, "storage.CheckObjectExistence", "s3", aw.mode)
	defer span.End()
	start := time.Now()

	existence, err := aw.checkExistence(ctx, ObjectLocator{ContainerName: containerName, ObjectName: objectName})
	aw.observer.RecordOperation(operationExists, aw.mode, time.Since(start), err)
	endSpan(span, err)
	return existence, err
}

func (aw *S3SigningHelper) checkExistence(ctx context.Context, locator ObjectLocator) (Existence, error) {
	_, err := aw.headObject(ctx, locator)
	if err == nil {
		return ExistenceExists, nil
	}
	if isS3NotFound(err) {
		return ExistenceNotFound, nil
	}
	return ExistenceCheckFailed, err
}

func (aw *S3SigningHelper) ObjectExists(ctx context.Context, containerName string, objectName string) bool {
	existence, err := aw.CheckObjectExistence(ctx, containerName, objectName)
	if err != nil {
		aw.logger.DebugContext(ctx, "existence check failed",
			slog.String("object", containerName+"/"+objectName),
			slog.Any("error", err))
	}
	return existence == ExistenceExists
}

func (aw *S3SigningHelper) GetObjectProperties(ctx context.Context, containerName string,
	objectName string) (ObjectProperties, error) {
	resp, err := aw.headObject(ctx, ObjectLocator{ContainerName: containerName, ObjectName: objectName})
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
		properties.ETag = *resp.ETag
	}
	if resp.LastModified != nil {
		properties.LastModified = *resp.LastModified
	}
	for key, value := range resp.Metadata {
		properties.Metadata[key] = value
	}
	return properties, nil
}

func (aw *S3SigningHelper) headObject(ctx context.Context, locator ObjectLocator) (*s3.HeadObjectOutput, error) {
	return aw.s3ServicesClient.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(locator.ContainerName),
		Key:    aws.String(locator.ObjectName),
	})
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
