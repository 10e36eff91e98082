package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lib-cloud-sas-go/storage"
)

type objectFlags struct {
	url       string
	container string
	blob      string
}

func (f *objectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "full object URL")
	cmd.Flags().StringVar(&f.container, "container", "", "container or bucket name")
	cmd.Flags().StringVar(&f.blob, "blob", "", "object name within the container")
	cmd.MarkFlagsMutuallyExclusive("url", "container")
	cmd.MarkFlagsMutuallyExclusive("url", "blob")
}

func (f *objectFlags) locator() (storage.ObjectLocator, error) {
	if f.url != "" {
		return storage.ParseObjectURL(f.url)
	}
	if f.container == "" || f.blob == "" {
		return storage.ObjectLocator{}, fmt.Errorf("either --url or both --container and --blob are required")
	}
	return storage.ObjectLocator{ContainerName: f.container, ObjectName: f.blob}, nil
}

func newRootCommand() *cobra.Command {
	var v *viper.Viper
	root := &cobra.Command{
		Use:           "signurl",
		Short:         "Generate time-limited signed URLs for cloud storage objects",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load .env: %w", err)
			}
			var err error
			v, err = newViper(cmd.Flags())
			return err
		},
	}
	registerConfigFlags(root.PersistentFlags())

	generator := func(cmd *cobra.Command) (storage.SignedURLGenerator, error) {
		cfg := loadConfig(v)
		return newGenerator(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()))
	}

	root.AddCommand(
		newSignCommand(generator),
		newPowerBICommand(generator),
		newExistsCommand(generator),
		newPropertiesCommand(generator),
	)
	return root
}

type generatorFunc func(cmd *cobra.Command) (storage.SignedURLGenerator, error)

func newSignCommand(generator generatorFunc) *cobra.Command {
	var object objectFlags
	var expiryHours int
	var permissions string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a signed URL for one object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locator, err := object.locator()
			if err != nil {
				return err
			}
			perms, err := storage.ParsePermissions(permissions)
			if err != nil {
				return err
			}
			g, err := generator(cmd)
			if err != nil {
				return err
			}
			signedURL, err := g.GenerateSignedURL(cmd.Context(), locator.ContainerName, locator.ObjectName,
				&storage.SignedURLOptions{ExpiryHours: expiryHours, Permissions: perms})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signedURL)
			return err
		},
	}
	object.register(cmd)
	cmd.Flags().IntVar(&expiryHours, "expiry-hours", 24, "hours until the URL expires")
	cmd.Flags().StringVar(&permissions, "permissions", "r", "permissions as SAS letters (rw) or names (read,write)")
	return cmd
}

func newPowerBICommand(generator generatorFunc) *cobra.Command {
	var expiryHours int
	cmd := &cobra.Command{
		Use:   "powerbi <url>",
		Short: "Print a read-only signed URL suitable for Power BI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := generator(cmd)
			if err != nil {
				return err
			}
			signedURL, err := storage.GeneratePowerBISignedURL(cmd.Context(), g, args[0], expiryHours)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signedURL)
			return err
		},
	}
	cmd.Flags().IntVar(&expiryHours, "expiry-hours", 48, "hours until the URL expires")
	return cmd
}

func newExistsCommand(generator generatorFunc) *cobra.Command {
	var object objectFlags
	cmd := &cobra.Command{
		Use:   "exists",
		Short: "Report whether an object exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locator, err := object.locator()
			if err != nil {
				return err
			}
			g, err := generator(cmd)
			if err != nil {
				return err
			}
			existence, err := g.CheckObjectExistence(cmd.Context(), locator.ContainerName, locator.ObjectName)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(existence == storage.ExistenceExists))
			return err
		},
	}
	object.register(cmd)
	return cmd
}

func newPropertiesCommand(generator generatorFunc) *cobra.Command {
	var object objectFlags
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Print object properties as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locator, err := object.locator()
			if err != nil {
				return err
			}
			g, err := generator(cmd)
			if err != nil {
				return err
			}
			properties, err := g.GetObjectProperties(cmd.Context(), locator.ContainerName, locator.ObjectName)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(properties)
		},
	}
	object.register(cmd)
	return cmd
}
