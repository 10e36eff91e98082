package storage

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeBlobService struct {
	propertiesErr  error
	canSign        bool
	delegationErr  error
	propertyCalls  int
	sharedKeyCalls int
	leaseCalls     int
	delegatedCalls int
	leases         []DelegationKeyLease
	descriptors    []sas.BlobSignatureValues
	sharedKeySigns []sharedKeySign
}

type sharedKeySign struct {
	locator     ObjectLocator
	permissions string
	expiry      time.Time
}

func (f *fakeBlobService) BlobURL(locator ObjectLocator) string {
	return "https://acct.blob.core.windows.net/" + locator.ContainerName + "/" + locator.ObjectName
}

func (f *fakeBlobService) GetProperties(_ context.Context, _ ObjectLocator) (ObjectProperties, error) {
	f.propertyCalls++
	if f.propertiesErr != nil {
		return ObjectProperties{}, f.propertiesErr
	}
	return ObjectProperties{ContentLength: 42, ContentType: "application/octet-stream"}, nil
}

func (f *fakeBlobService) SharedKeySASURL(locator ObjectLocator, permissions sas.BlobPermissions,
	expiry time.Time) (string, error) {
	f.sharedKeyCalls++
	if !f.canSign {
		return "", bloberror.MissingSharedKeyCredential
	}
	f.sharedKeySigns = append(f.sharedKeySigns, sharedKeySign{
		locator:     locator,
		permissions: permissions.String(),
		expiry:      expiry,
	})
	return f.BlobURL(locator) + "?sp=" + permissions.String() + "&sig=shared", nil
}

func (f *fakeBlobService) GetUserDelegationCredential(_ context.Context,
	lease DelegationKeyLease) (*service.UserDelegationCredential, error) {
	f.leaseCalls++
	f.leases = append(f.leases, lease)
	if f.delegationErr != nil {
		return nil, f.delegationErr
	}
	return &service.UserDelegationCredential{}, nil
}

func (f *fakeBlobService) SignWithUserDelegation(values sas.BlobSignatureValues,
	_ *service.UserDelegationCredential) (string, error) {
	f.delegatedCalls++
	f.descriptors = append(f.descriptors, values)
	return "sp=" + values.Permissions + "&sig=delegated", nil
}

func (f *fakeBlobService) signingCalls() int {
	return len(f.sharedKeySigns) + f.delegatedCalls
}

func newTestHelper(mode SigningMode, blobService BlobService) *AzureSigningHelper {
	helper := newAzureSigningHelper(mode, blobService, nil)
	helper.now = func() time.Time { return fixedNow }
	return helper
}

func notFoundError() error {
	return &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: string(bloberror.BlobNotFound)}
}

func TestConstructionRejectsEmptyConfiguration(t *testing.T) {
	_, err := NewAzureSigningHelperFromConnectionString("", nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewAzureSigningHelperFromIdentity("", nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewAzureSigningHelper(ProxyAuthHandlerAzureClientSecretIdentity{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = SignedURLGeneratorFactory(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestConstructionRejectsWrongHandler(t *testing.T) {
	_, err := NewAzureSigningHelper(ProxyAuthHandlerAWSDefaultIdentity{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewS3SigningHelper(ProxyAuthHandlerAzureIdentity{AccountName: "acct"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestConstructionRejectsInvalidAccountName(t *testing.T) {
	for _, name := range []string{"ab", "Upper", "has-dash", "waytoolongaccountname12345"} {
		_, err := NewAzureSigningHelperFromIdentity(name, nil)
		assert.ErrorIs(t, err, ErrInvalidConfiguration, name)
	}
}

func TestAccountServiceURL(t *testing.T) {
	url, err := accountServiceURL("freetoolsfiles", "")
	require.NoError(t, err)
	assert.Equal(t, "https://freetoolsfiles.blob.core.windows.net", url)

	url, err = accountServiceURL("acct", "core.usgovcloudapi.net")
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.usgovcloudapi.net", url)
}

func TestGenerateSignedURLObjectNotFound(t *testing.T) {
	for _, mode := range []SigningMode{SigningModeSharedKey, SigningModeDelegatedIdentity} {
		blobService := &fakeBlobService{propertiesErr: notFoundError(), canSign: true}
		helper := newTestHelper(mode, blobService)

		_, err := helper.GenerateSignedURL(context.Background(), "powerbi", "missing.pbix", nil)
		assert.ErrorIs(t, err, ErrSigningFailed)
		assert.ErrorIs(t, err, ErrObjectNotFound)
		assert.Equal(t, 0, blobService.signingCalls())
		assert.Equal(t, 0, blobService.leaseCalls)
	}
}

func TestGenerateSignedURLDefaults(t *testing.T) {
	blobService := &fakeBlobService{canSign: true}
	helper := newTestHelper(SigningModeSharedKey, blobService)

	signedURL, err := helper.GenerateSignedURL(context.Background(), "powerbi", "Report1/v1.pbix", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/powerbi/Report1/v1.pbix?sp=r&sig=shared", signedURL)

	require.Len(t, blobService.sharedKeySigns, 1)
	signed := blobService.sharedKeySigns[0]
	assert.Equal(t, "r", signed.permissions)
	assert.Equal(t, fixedNow.Add(24*time.Hour), signed.expiry)
	assert.Equal(t, ObjectLocator{ContainerName: "powerbi", ObjectName: "Report1/v1.pbix"}, signed.locator)
	assert.Empty(t, blobService.descriptors)
}

func TestGeneratePowerBISignedURLDefaults(t *testing.T) {
	blobService := &fakeBlobService{canSign: true}
	helper := newTestHelper(SigningModeSharedKey, blobService)

	_, err := GeneratePowerBISignedURL(context.Background(), helper,
		"https://freetoolsfiles.blob.core.windows.net/powerbi/MemberHccGapAnalytics/Report1/MA/v1.pbix", 0)
	require.NoError(t, err)

	require.Len(t, blobService.sharedKeySigns, 1)
	signed := blobService.sharedKeySigns[0]
	assert.Equal(t, "r", signed.permissions)
	assert.Equal(t, fixedNow.Add(48*time.Hour), signed.expiry)
	assert.Equal(t, ObjectLocator{ContainerName: "powerbi", ObjectName: "MemberHccGapAnalytics/Report1/MA/v1.pbix"},
		signed.locator)

	_, err = GeneratePowerBISignedURL(context.Background(), helper,
		"https://freetoolsfiles.blob.core.windows.net/powerbi/v2.pbix", 6)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(6*time.Hour), blobService.sharedKeySigns[1].expiry)

	_, err = GeneratePowerBISignedURL(context.Background(), helper,
		"https://freetoolsfiles.blob.core.windows.net/powerbi/v2.pbix", -3)
	assert.ErrorIs(t, err, ErrSigningFailed)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Len(t, blobService.sharedKeySigns, 2)
}

func TestObjectExistsSwallowsFailures(t *testing.T) {
	blobService := &fakeBlobService{propertiesErr: errors.New("dial tcp: connection refused")}
	helper := newTestHelper(SigningModeSharedKey, blobService)

	assert.False(t, helper.ObjectExists(context.Background(), "powerbi", "v1.pbix"))

	existence, err := helper.CheckObjectExistence(context.Background(), "powerbi", "v1.pbix")
	assert.Equal(t, ExistenceCheckFailed, existence)
	assert.EqualError(t, err, "dial tcp: connection refused")
}

func TestCheckObjectExistence(t *testing.T) {
	helper := newTestHelper(SigningModeSharedKey, &fakeBlobService{})
	existence, err := helper.CheckObjectExistence(context.Background(), "powerbi", "v1.pbix")
	require.NoError(t, err)
	assert.Equal(t, ExistenceExists, existence)
	assert.True(t, helper.ObjectExists(context.Background(), "powerbi", "v1.pbix"))

	helper = newTestHelper(SigningModeSharedKey, &fakeBlobService{propertiesErr: notFoundError()})
	existence, err = helper.CheckObjectExistence(context.Background(), "powerbi", "v1.pbix")
	require.NoError(t, err)
	assert.Equal(t, ExistenceNotFound, existence)
	assert.False(t, helper.ObjectExists(context.Background(), "powerbi", "v1.pbix"))
}

func TestSharedKeySigningNotSupported(t *testing.T) {
	blobService := &fakeBlobService{canSign: false}
	helper := newTestHelper(SigningModeSharedKey, blobService)

	_, err := helper.GenerateSignedURL(context.Background(), "powerbi", "v1.pbix", nil)
	assert.ErrorIs(t, err, ErrSigningFailed)
	assert.ErrorIs(t, err, ErrSigningNotSupported)
	assert.Equal(t, 0, blobService.leaseCalls)
	assert.Equal(t, 0, blobService.signingCalls())
	assert.ErrorIs(t, err, bloberror.MissingSharedKeyCredential)
}

func TestDelegatedIdentityLeaseWindow(t *testing.T) {
	blobService := &fakeBlobService{}
	helper := newTestHelper(SigningModeDelegatedIdentity, blobService)

	signedURL, err := helper.GenerateSignedURL(context.Background(), "powerbi", "v1.pbix",
		&SignedURLOptions{ExpiryHours: 5})
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/powerbi/v1.pbix?sp=r&sig=delegated", signedURL)

	require.Len(t, blobService.leases, 1)
	assert.Equal(t, DelegationKeyLease{ValidFrom: fixedNow, ValidUntil: fixedNow.Add(5 * time.Hour)}, blobService.leases[0])
	descriptor := blobService.descriptors[0]
	assert.Equal(t, fixedNow, descriptor.StartTime)
	assert.Equal(t, fixedNow.Add(5*time.Hour), descriptor.ExpiryTime)
	assert.Equal(t, 0, blobService.sharedKeyCalls)
}

func TestDelegatedIdentityPermissionsChangeDescriptor(t *testing.T) {
	blobService := &fakeBlobService{}
	helper := newTestHelper(SigningModeDelegatedIdentity, blobService)

	readURL, err := helper.GenerateSignedURL(context.Background(), "powerbi", "v1.pbix",
		&SignedURLOptions{Permissions: PermissionRead})
	require.NoError(t, err)
	readWriteURL, err := helper.GenerateSignedURL(context.Background(), "powerbi", "v1.pbix",
		&SignedURLOptions{Permissions: PermissionRead | PermissionWrite})
	require.NoError(t, err)

	require.Len(t, blobService.descriptors, 2)
	assert.Equal(t, "r", blobService.descriptors[0].Permissions)
	assert.Equal(t, "rw", blobService.descriptors[1].Permissions)
	assert.NotEqual(t, readURL, readWriteURL)
}

func TestDelegationKeyFailureIsSigningFailed(t *testing.T) {
	cause := errors.New("AuthorizationPermissionMismatch")
	blobService := &fakeBlobService{delegationErr: cause}
	helper := newTestHelper(SigningModeDelegatedIdentity, blobService)

	_, err := helper.GenerateSignedURL(context.Background(), "powerbi", "v1.pbix", nil)
	assert.ErrorIs(t, err, ErrSigningFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, blobService.delegatedCalls)
}

func TestTransportFailureIsSigningFailed(t *testing.T) {
	cause := errors.New("connection reset by peer")
	blobService := &fakeBlobService{propertiesErr: cause, canSign: true}
	helper := newTestHelper(SigningModeSharedKey, blobService)

	_, err := helper.GenerateSignedURL(context.Background(), "powerbi", "v1.pbix", nil)
	assert.ErrorIs(t, err, ErrSigningFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, 0, blobService.signingCalls())
}

func TestInvalidArgumentsFailBeforeNetwork(t *testing.T) {
	blobService := &fakeBlobService{canSign: true}
	helper := newTestHelper(SigningModeSharedKey, blobService)

	for _, args := range []struct {
		container string
		object    string
		options   *SignedURLOptions
	}{
		{"", "v1.pbix", nil},
		{"powerbi", "", nil},
		{"powerbi", "v1.pbix", &SignedURLOptions{ExpiryHours: -1}},
	} {
		_, err := helper.GenerateSignedURL(context.Background(), args.container, args.object, args.options)
		assert.ErrorIs(t, err, ErrSigningFailed)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}

	// malformed URLs are rejected before signing starts
	_, err := helper.GenerateSignedURLFromFullURL(context.Background(), "https://acct.blob.core.windows.net/onlycontainer", nil)
	assert.ErrorIs(t, err, ErrInvalidUrlFormat)
	assert.NotErrorIs(t, err, ErrSigningFailed)
	_, err = helper.GenerateSignedURLFromFullURL(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidUrlFormat)

	assert.Equal(t, 0, blobService.propertyCalls)
}

func TestGetObjectPropertiesPropagatesErrors(t *testing.T) {
	cause := notFoundError()
	helper := newTestHelper(SigningModeSharedKey, &fakeBlobService{propertiesErr: cause})

	_, err := helper.GetObjectProperties(context.Background(), "powerbi", "v1.pbix")
	assert.Same(t, cause, err)

	helper = newTestHelper(SigningModeSharedKey, &fakeBlobService{})
	properties, err := helper.GetObjectProperties(context.Background(), "powerbi", "v1.pbix")
	require.NoError(t, err)
	assert.Equal(t, int64(42), properties.ContentLength)
}

func TestErrorMessages(t *testing.T) {
	blobService := &fakeBlobService{propertiesErr: notFoundError()}
	helper := newTestHelper(SigningModeSharedKey, blobService)

	_, err := helper.GenerateSignedURL(context.Background(), "powerbi", "missing.pbix", nil)
	assert.EqualError(t, err,
		"CloudStorage Error: unable to generate signed URL: CloudStorage Error: blob 'missing.pbix' not found in container 'powerbi'")

	var cloudError *CloudStorageError
	require.ErrorAs(t, err, &cloudError)
	assert.Equal(t, KindSigningFailed, cloudError.Kind)
	assert.Equal(t, "CloudStorage Error: ObjectNotFound", ErrObjectNotFound.Error())
}
