package secrets

import (
	"fmt"
	"time"

	"golang.org/x/net/context"
)

// CloudSecretsProxy resolves named secrets, such as a storage connection string.
type CloudSecretsProxy interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// CloudSecretsCacheOptions bounds the per-proxy secret cache. A nil pointer or
// zero fields select 10 entries and a 10 minute TTL.
type CloudSecretsCacheOptions struct {
	MaxEntries int
	TTL        time.Duration
}

func CloudSecretsProxyFactory(handler ProxyAuthHandler, options *CloudSecretsCacheOptions) (CloudSecretsProxy, error) {
	if handler == nil {
		return nil, wrapError("auth handler must not be nil", nil)
	}
	return handler.createSecretsClient(options)
}

type CloudSecretsError struct {
	message       string
	internalError error
}

func (err *CloudSecretsError) Error() string {
	return fmt.Sprintf("CloudSecrets Error: %s", err.message)
}

func (err *CloudSecretsError) Unwrap() error {
	return err.internalError
}

func wrapError(msg string, err error) *CloudSecretsError {
	return &CloudSecretsError{message: msg, internalError: err}
}
