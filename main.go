package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gate-sso/gate-wireguard/config"
	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
	"github.com/gate-sso/gate-wireguard/server"
)

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "gate-wireguard",
		Short: "WireGuard admin panel: devices, addresses and server config",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfgFile != "" {
				_ = os.Setenv("CONFIG_FILE", cfgFile)
			}
		},
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "publish",
		Short: "Rewrite the server config and keys on disk from the database",
		RunE:  runPublish,
	})

	var keygen, wgBinary string
	genkeyCmd := &cobra.Command{
		Use:   "genkey",
		Short: "Print a new WireGuard key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := wireguard.NewKeyGenerator(keygen, wgBinary)
			if err != nil {
				return err
			}
			kp, err := keys.GenerateKeyPair(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "private: %s\npublic:  %s\n", kp.PrivateKey, kp.PublicKey)
			return nil
		},
	}
	genkeyCmd.Flags().StringVar(&keygen, "keygen", "auto", "key generator: auto|wg|native")
	genkeyCmd.Flags().StringVar(&wgBinary, "wg-binary", "wg", "path to the wg tool")
	rootCmd.AddCommand(genkeyCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app := &server.App{}
	if err := app.Initialize(cfg); err != nil {
		return err
	}
	return app.Run()
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	server.InitLogs(cfg)

	d, err := server.OpenDB(cfg)
	if err != nil {
		return err
	}
	svc, syncer, err := server.NewService(cfg, d)
	if err != nil {
		return err
	}
	if syncer != nil {
		defer syncer.Close()
	}

	res, err := svc.Reconcile(cmd.Context())
	if err != nil {
		return err
	}
	logs.For("cli").WithField("path", res.ConfigPath).Info("published")
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.ConfigPath, res.Checksum)
	return nil
}
