package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ctslicesto3d/internal/x"
	"ctslicesto3d/pkg/config"
)

// Config is the sub-command invoked when running "ctslicesto3d config".
var Config x.SubCommand

func init() {
	Config.Cmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the YAML configuration file",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	Config.EnvPrefix = "CTS3D_CONFIG"

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConf
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			return initConfig(path, force)
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	Config.Cmd.AddCommand(initCmd)

	Config.Cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := rootConf.GetString("config")
			if path == "" {
				path = defaultConf
			}
			fmt.Printf("# %s\n", path)
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})
}

func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return usageErrorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", path)
	return nil
}
