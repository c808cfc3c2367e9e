package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vertextoedge/batchfetch/internal/config"
)

func newConfigCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(ro)
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), ro.JSONOut).Config(cfg.Redacted())
		},
	}
}

// Config prints configuration as YAML, the format it is written in
func (p *printer) Config(cfg *config.Config) error {
	if p.json {
		return p.JSON(cfg)
	}
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
