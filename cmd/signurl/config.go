package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"lib-cloud-sas-go/secrets"
	"lib-cloud-sas-go/storage"
)

const envPrefix = "SIGNURL"

type config struct {
	Provider         string
	ConnectionString string
	AccountName      string
	EndpointSuffix   string
	TenantID         string
	ClientID         string
	ClientSecret     string
	SecretProvider   string
	SecretName       string
	KeyVaultURL      string
	Region           string
	AccountURL       string
	AccessID         string
	AccessKey        string
	Verbose          bool
}

func registerConfigFlags(flags *pflag.FlagSet) {
	flags.String("provider", "azure", "storage provider: azure or s3")
	flags.String("connection-string", "", "Azure storage connection string (shared key mode)")
	flags.String("account-name", "", "Azure storage account name (delegated identity mode)")
	flags.String("endpoint-suffix", "", "Azure storage endpoint suffix (default core.windows.net)")
	flags.String("tenant-id", "", "service principal tenant id")
	flags.String("client-id", "", "service principal client id")
	flags.String("client-secret", "", "service principal client secret")
	flags.String("secret-provider", "azure", "where --secret-name is resolved: azure (Key Vault) or aws (Secrets Manager)")
	flags.String("secret-name", "", "name of a secret holding the connection string")
	flags.String("key-vault-url", "", "Key Vault URL used with --secret-provider azure")
	flags.String("region", "", "AWS region")
	flags.String("account-url", "", "S3 endpoint override (path-style)")
	flags.String("access-id", "", "AWS access key id")
	flags.String("access-key", "", "AWS secret access key")
	flags.BoolP("verbose", "v", false, "log at debug level")
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

func loadConfig(v *viper.Viper) config {
	return config{
		Provider:         strings.ToLower(v.GetString("provider")),
		ConnectionString: v.GetString("connection-string"),
		AccountName:      v.GetString("account-name"),
		EndpointSuffix:   v.GetString("endpoint-suffix"),
		TenantID:         v.GetString("tenant-id"),
		ClientID:         v.GetString("client-id"),
		ClientSecret:     v.GetString("client-secret"),
		SecretProvider:   strings.ToLower(v.GetString("secret-provider")),
		SecretName:       v.GetString("secret-name"),
		KeyVaultURL:      v.GetString("key-vault-url"),
		Region:           v.GetString("region"),
		AccountURL:       v.GetString("account-url"),
		AccessID:         v.GetString("access-id"),
		AccessKey:        v.GetString("access-key"),
		Verbose:          v.GetBool("verbose"),
	}
}

func newLogger(cfg config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// authHandler maps the configuration onto exactly one signing mode.
func authHandler(cfg config) (storage.ProxyAuthHandler, error) {
	switch cfg.Provider {
	case "", "azure":
		if cfg.ConnectionString != "" && cfg.AccountName != "" {
			return nil, fmt.Errorf("connection string and account name are mutually exclusive")
		}
		if cfg.ConnectionString != "" {
			return storage.ProxyAuthHandlerAzureConnectionString{ConnectionString: cfg.ConnectionString}, nil
		}
		if cfg.AccountName == "" {
			return nil, fmt.Errorf("one of connection string, secret name or account name is required")
		}
		if cfg.ClientID != "" {
			return storage.ProxyAuthHandlerAzureClientSecretIdentity{
				AccountName:    cfg.AccountName,
				EndpointSuffix: cfg.EndpointSuffix,
				TenantID:       cfg.TenantID,
				ClientID:       cfg.ClientID,
				ClientSecret:   cfg.ClientSecret,
			}, nil
		}
		return storage.ProxyAuthHandlerAzureIdentity{AccountName: cfg.AccountName, EndpointSuffix: cfg.EndpointSuffix}, nil
	case "s3", "aws":
		if cfg.AccessID != "" || cfg.AccessKey != "" {
			return storage.ProxyAuthHandlerAWSConfiguredIdentity{
				AccountURL: cfg.AccountURL,
				Region:     cfg.Region,
				AccessID:   cfg.AccessID,
				AccessKey:  cfg.AccessKey,
			}, nil
		}
		return storage.ProxyAuthHandlerAWSDefaultIdentity{AccountURL: cfg.AccountURL, Region: cfg.Region}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func secretsHandler(cfg config) (secrets.ProxyAuthHandler, error) {
	switch cfg.SecretProvider {
	case "", "azure":
		if cfg.KeyVaultURL == "" {
			return nil, fmt.Errorf("key vault URL is required to resolve secret %q", cfg.SecretName)
		}
		if cfg.ClientID != "" {
			return secrets.ProxyAuthHandlerAzureClientSecretIdentity{
				KeyVaultURL:  cfg.KeyVaultURL,
				TenantID:     cfg.TenantID,
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
			}, nil
		}
		return secrets.ProxyAuthHandlerAzureDefaultIdentity{KeyVaultURL: cfg.KeyVaultURL}, nil
	case "aws":
		if cfg.AccessID != "" {
			return secrets.ProxyAuthHandlerAWSConfiguredIdentity{
				Region:    cfg.Region,
				AccessID:  cfg.AccessID,
				AccessKey: cfg.AccessKey,
			}, nil
		}
		return secrets.ProxyAuthHandlerAWSDefaultIdentity{Region: cfg.Region}, nil
	default:
		return nil, fmt.Errorf("unknown secret provider %q", cfg.SecretProvider)
	}
}

// resolveConnectionString replaces the connection string with the named
// secret when one is configured.
func resolveConnectionString(ctx context.Context, cfg config) (config, error) {
	if cfg.SecretName == "" {
		return cfg, nil
	}
	if cfg.ConnectionString != "" {
		return cfg, fmt.Errorf("connection string and secret name are mutually exclusive")
	}
	handler, err := secretsHandler(cfg)
	if err != nil {
		return cfg, err
	}
	proxy, err := secrets.CloudSecretsProxyFactory(handler, &secrets.CloudSecretsCacheOptions{
		MaxEntries: 1,
		TTL:        time.Minute,
	})
	if err != nil {
		return cfg, err
	}
	value, err := proxy.GetSecret(ctx, cfg.SecretName)
	if err != nil {
		return cfg, err
	}
	cfg.ConnectionString = value
	return cfg, nil
}

func newGenerator(ctx context.Context, cfg config, logger *slog.Logger) (storage.SignedURLGenerator, error) {
	cfg, err := resolveConnectionString(ctx, cfg)
	if err != nil {
		return nil, err
	}
	handler, err := authHandler(cfg)
	if err != nil {
		return nil, err
	}
	return storage.SignedURLGeneratorFactory(handler, &storage.SigningHelperOptions{Logger: logger})
}
