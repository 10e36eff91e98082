package storage

import (
	"fmt"
	"time"

	"golang.org/x/net/context"
)

// SignedURLGenerator produces time-limited, permission-scoped URLs for single
// objects. AzureSigningHelper and S3SigningHelper both implement it.
type SignedURLGenerator interface {
	GenerateSignedURL(ctx context.Context, containerName string, objectName string,
		options *SignedURLOptions) (string, error)
	GenerateSignedURLFromFullURL(ctx context.Context, objectURL string, options *SignedURLOptions) (string, error)
	CheckObjectExistence(ctx context.Context, containerName string, objectName string) (Existence, error)
	ObjectExists(ctx context.Context, containerName string, objectName string) bool
	GetObjectProperties(ctx context.Context, containerName string, objectName string) (ObjectProperties, error)
}

const (
	defaultExpiryHours        = 24
	defaultPowerBIExpiryHours = 48
)

// SignedURLOptions controls a single signing request. A nil pointer or zero
// fields select the defaults: 24 hours, read only.
type SignedURLOptions struct {
	ExpiryHours int
	Permissions Permissions
}

type signingRequest struct {
	locator     ObjectLocator
	expiry      time.Duration
	permissions Permissions
}

func (options *SignedURLOptions) resolve(locator ObjectLocator) (signingRequest, error) {
	request := signingRequest{
		locator:     locator,
		expiry:      defaultExpiryHours * time.Hour,
		permissions: PermissionRead,
	}
	if options == nil {
		return request, nil
	}
	if options.ExpiryHours < 0 {
		return request, newError(KindInvalidArgument,
			fmt.Sprintf("expiry hours must not be negative, got %d", options.ExpiryHours), nil)
	}
	if options.ExpiryHours > 0 {
		request.expiry = time.Duration(options.ExpiryHours) * time.Hour
	}
	if options.Permissions != 0 {
		request.permissions = options.Permissions
	}
	return request, nil
}

// ObjectProperties is the subset of object metadata both providers report.
type ObjectProperties struct {
	ContentLength int64
	ContentType   string
	ETag          string
	LastModified  time.Time
	Metadata      map[string]string
}

// DelegationKeyLease is the validity window requested for a user delegation key.
type DelegationKeyLease struct {
	ValidFrom  time.Time
	ValidUntil time.Time
}

// Existence is the outcome of an existence check.
type Existence int

const (
	ExistenceCheckFailed Existence = iota
	ExistenceExists
	ExistenceNotFound
)

func (e Existence) String() string {
	switch e {
	case ExistenceExists:
		return "exists"
	case ExistenceNotFound:
		return "not_found"
	default:
		return "check_failed"
	}
}

// GeneratePowerBISignedURL signs a read-only URL for a report file. An
// expiryHours of zero selects 48 hours.
func GeneratePowerBISignedURL(ctx context.Context, generator SignedURLGenerator, objectURL string,
	expiryHours int) (string, error) {
	if expiryHours == 0 {
		expiryHours = defaultPowerBIExpiryHours
	}
	return generator.GenerateSignedURLFromFullURL(ctx, objectURL, &SignedURLOptions{
		ExpiryHours: expiryHours,
		Permissions: PermissionRead,
	})
}

// ErrorKind classifies a CloudStorageError.
type ErrorKind int

const (
	KindSigningFailed ErrorKind = iota
	KindInvalidConfiguration
	KindInvalidUrlFormat
	KindInvalidArgument
	KindObjectNotFound
	KindSigningNotSupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidConfiguration:
		return "InvalidConfiguration"
	case KindInvalidUrlFormat:
		return "InvalidUrlFormat"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindObjectNotFound:
		return "ObjectNotFound"
	case KindSigningNotSupported:
		return "SigningNotSupported"
	default:
		return "SigningFailed"
	}
}

// Sentinels for errors.Is. Any CloudStorageError of the same kind matches.
var (
	ErrSigningFailed        = &CloudStorageError{Kind: KindSigningFailed}
	ErrInvalidConfiguration = &CloudStorageError{Kind: KindInvalidConfiguration}
	ErrInvalidUrlFormat     = &CloudStorageError{Kind: KindInvalidUrlFormat}
	ErrInvalidArgument      = &CloudStorageError{Kind: KindInvalidArgument}
	ErrObjectNotFound       = &CloudStorageError{Kind: KindObjectNotFound}
	ErrSigningNotSupported  = &CloudStorageError{Kind: KindSigningNotSupported}
)

type CloudStorageError struct {
	Kind          ErrorKind
	message       string
	internalError error
}

func (err *CloudStorageError) Error() string {
	if err.message == "" {
		return fmt.Sprintf("CloudStorage Error: %s", err.Kind)
	}
	return fmt.Sprintf("CloudStorage Error: %s", err.message)
}

func (err *CloudStorageError) Unwrap() error {
	return err.internalError
}

func (err *CloudStorageError) Is(target error) bool {
	t, ok := target.(*CloudStorageError)
	return ok && t.Kind == err.Kind
}

func newError(kind ErrorKind, msg string, err error) *CloudStorageError {
	return &CloudStorageError{Kind: kind, message: msg, internalError: err}
}

func wrapError(msg string, err error) *CloudStorageError {
	return newError(KindSigningFailed, msg, err)
}
