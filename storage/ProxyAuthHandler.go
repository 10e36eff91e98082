package storage

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// ProxyAuthHandler selects a provider and signing mode. Each handler type
// carries exactly the data its mode needs.
type ProxyAuthHandler interface {
	createSignedURLGenerator(options *SigningHelperOptions) (SignedURLGenerator, error)
}

type azureAuthHandler interface {
	ProxyAuthHandler
	signingMode() SigningMode
	createBlobService() (BlobService, error)
}

// SigningMode is how a helper obtains signing rights.
type SigningMode int

const (
	// SigningModeSharedKey signs locally with a static account key.
	SigningModeSharedKey SigningMode = iota
	// SigningModeDelegatedIdentity signs with a key issued to an identity.
	SigningModeDelegatedIdentity
	// SigningModeCredentialChain presigns with whatever credentials the AWS
	// default chain resolves.
	SigningModeCredentialChain
)

func (m SigningMode) String() string {
	switch m {
	case SigningModeDelegatedIdentity:
		return "delegated_identity"
	case SigningModeCredentialChain:
		return "credential_chain"
	default:
		return "shared_key"
	}
}

// SigningHelperOptions holds the ambient collaborators of a helper. A nil
// pointer selects slog.Default and no metrics.
type SigningHelperOptions struct {
	Logger   *slog.Logger
	Observer Observer
}

func (options *SigningHelperOptions) logger() *slog.Logger {
	if options == nil || options.Logger == nil {
		return slog.Default()
	}
	return options.Logger
}

func (options *SigningHelperOptions) observer() Observer {
	if options == nil || options.Observer == nil {
		return noopObserver{}
	}
	return options.Observer
}

// SignedURLGeneratorFactory builds the generator matching handler.
func SignedURLGeneratorFactory(handler ProxyAuthHandler, options *SigningHelperOptions) (SignedURLGenerator, error) {
	if handler == nil {
		return nil, newError(KindInvalidConfiguration, "auth handler must not be nil", nil)
	}
	return handler.createSignedURLGenerator(options)
}

// asGenerator keeps a failed constructor from yielding a non-nil interface
// around a nil helper.
func asGenerator[T SignedURLGenerator](helper T, err error) (SignedURLGenerator, error) {
	if err != nil {
		return nil, err
	}
	return helper, nil
}

const defaultEndpointSuffix = "core.windows.net"

var accountNamePattern = regexp.MustCompile(`^[a-z0-9]{3,24}$`)

// ProxyAuthHandlerAzureConnectionString signs with the account key carried by
// the connection string.
type ProxyAuthHandlerAzureConnectionString struct {
	ConnectionString string
}

// ProxyAuthHandlerAzureIdentity signs with a user delegation key obtained
// through the ambient Azure credential chain (workload identity, managed
// identity, environment, CLI).
type ProxyAuthHandlerAzureIdentity struct {
	AccountName string
	// EndpointSuffix defaults to core.windows.net.
	EndpointSuffix string
}

// ProxyAuthHandlerAzureClientSecretIdentity signs with a user delegation key
// obtained for a service principal.
type ProxyAuthHandlerAzureClientSecretIdentity struct {
	AccountName    string
	EndpointSuffix string
	TenantID       string
	ClientID       string
	ClientSecret   string
}

func (handler ProxyAuthHandlerAzureConnectionString) signingMode() SigningMode {
	return SigningModeSharedKey
}

func (handler ProxyAuthHandlerAzureConnectionString) createBlobService() (BlobService, error) {
	if strings.TrimSpace(handler.ConnectionString) == "" {
		return nil, newError(KindInvalidConfiguration, "connection string must not be empty", nil)
	}
	return newAzureBlobServiceFromConnectionString(handler.ConnectionString)
}

func (handler ProxyAuthHandlerAzureConnectionString) createSignedURLGenerator(options *SigningHelperOptions) (SignedURLGenerator, error) {
	return asGenerator(NewAzureSigningHelper(handler, options))
}

func (handler ProxyAuthHandlerAzureIdentity) signingMode() SigningMode {
	return SigningModeDelegatedIdentity
}

func (handler ProxyAuthHandlerAzureIdentity) createBlobService() (BlobService, error) {
	accountURL, err := accountServiceURL(handler.AccountName, handler.EndpointSuffix)
	if err != nil {
		return nil, err
	}
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, newError(KindInvalidConfiguration, "unable to obtain default Azure credential", err)
	}
	return newAzureBlobServiceFromCredential(accountURL, credential)
}

func (handler ProxyAuthHandlerAzureIdentity) createSignedURLGenerator(options *SigningHelperOptions) (SignedURLGenerator, error) {
	return asGenerator(NewAzureSigningHelper(handler, options))
}

func (handler ProxyAuthHandlerAzureClientSecretIdentity) signingMode() SigningMode {
	return SigningModeDelegatedIdentity
}

func (handler ProxyAuthHandlerAzureClientSecretIdentity) createBlobService() (BlobService, error) {
	accountURL, err := accountServiceURL(handler.AccountName, handler.EndpointSuffix)
	if err != nil {
		return nil, err
	}
	if handler.TenantID == "" || handler.ClientID == "" || handler.ClientSecret == "" {
		return nil, newError(KindInvalidConfiguration, "tenant id, client id and client secret are required", nil)
	}
	var credential azcore.TokenCredential
	credential, err = azidentity.NewClientSecretCredential(handler.TenantID, handler.ClientID, handler.ClientSecret, nil)
	if err != nil {
		return nil, newError(KindInvalidConfiguration, "unable to create client secret credential", err)
	}
	return newAzureBlobServiceFromCredential(accountURL, credential)
}

func (handler ProxyAuthHandlerAzureClientSecretIdentity) createSignedURLGenerator(options *SigningHelperOptions) (SignedURLGenerator, error) {
	return asGenerator(NewAzureSigningHelper(handler, options))
}

func accountServiceURL(accountName string, endpointSuffix string) (string, error) {
	if strings.TrimSpace(accountName) == "" {
		return "", newError(KindInvalidConfiguration, "storage account name must not be empty", nil)
	}
	if !accountNamePattern.MatchString(accountName) {
		return "", newError(KindInvalidConfiguration,
			fmt.Sprintf("storage account name %q must be 3-24 lowercase letters or digits", accountName), nil)
	}
	if endpointSuffix == "" {
		endpointSuffix = defaultEndpointSuffix
	}
	return fmt.Sprintf("https://%s.blob.%s", accountName, strings.Trim(endpointSuffix, ".")), nil
}

// ProxyAuthHandlerAWSDefaultIdentity presigns S3 URLs with the ambient AWS
// credential chain.
type ProxyAuthHandlerAWSDefaultIdentity struct {
	AccountURL string
	Region     string
}

// ProxyAuthHandlerAWSConfiguredIdentity presigns S3 URLs with a static access key.
type ProxyAuthHandlerAWSConfiguredIdentity struct {
	AccountURL string
	Region     string
	AccessID   string
	AccessKey  string
}

func (handler ProxyAuthHandlerAWSDefaultIdentity) createSignedURLGenerator(options *SigningHelperOptions) (SignedURLGenerator, error) {
	return asGenerator(NewS3SigningHelper(handler, options))
}

func (handler ProxyAuthHandlerAWSConfiguredIdentity) createSignedURLGenerator(options *SigningHelperOptions) (SignedURLGenerator, error) {
	return asGenerator(NewS3SigningHelper(handler, options))
}
