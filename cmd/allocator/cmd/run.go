package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tgravescs/dynexec/internal/allocatorapp"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the allocation controller",
		RunE:  runAllocator,
	}
	return cmd
}

func runAllocator(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return allocatorapp.Run(cfg)
}
