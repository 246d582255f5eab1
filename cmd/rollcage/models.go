package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rollcage/internal/config"
	"rollcage/internal/ollama"
	"rollcage/internal/proxy"
)

var modelsCmd = &cobra.Command{
	Use:   "models [NAME]",
	Short: "List installed models, or show the modelfile of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		httpClient, err := proxy.NewClient(cfg.Ollama.Proxy, config.Duration(cfg.Ollama.Timeout, time.Minute))
		if err != nil {
			return err
		}
		client := ollama.New(cfg.Ollama.URL, httpClient, 0)
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			info, err := client.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, info.Modelfile)
			return nil
		}

		models, err := client.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
		for _, m := range models {
			fmt.Fprintf(tw, "%s\t%.1f GB\t%s\n", m.Name, float64(m.Size)/1e9, m.ModifiedAt)
		}
		return tw.Flush()
	},
}
