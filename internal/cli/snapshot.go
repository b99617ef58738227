package cli

import (
	"github.com/spf13/cobra"

	"widgetcore/internal/blob"
	"widgetcore/internal/core"
)

func (c *CLI) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Back up or restore the widget store through the blob store",
	}
	cmd.AddCommand(c.snapshotExportCommand())
	cmd.AddCommand(c.snapshotImportCommand())
	cmd.AddCommand(c.snapshotListCommand())
	return cmd
}

func (c *CLI) snapshotExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the current store state as a JSON snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			svc, closeStore, err := c.openService(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			bs, err := blob.Open(ctx, cfg.Blob)
			if err != nil {
				return err
			}
			prog := newProgress(loggerFromContext(ctx))
			info, err := svc.Backup(ctx, bs)
			if err != nil {
				return err
			}
			prog.done("Snapshot exported")
			printSuccess(cmd.OutOrStdout(), "Exported %s widgets", info.Metadata["widgets"])
			printDetail(cmd.OutOrStdout(), "Key: %s (%s, %d bytes)", info.Key, bs.Driver(), info.Size)
			return nil
		},
	}
}

func (c *CLI) snapshotImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import [key]",
		Short: "Replace the store state with a snapshot (latest when no key is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			svc, closeStore, err := c.openService(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			bs, err := blob.Open(ctx, cfg.Blob)
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			}
			snapshot, err := svc.Restore(ctx, bs, key)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Imported %d widgets", len(snapshot.Widgets))
			printDetail(cmd.OutOrStdout(), "Next id: %d", snapshot.LastID+1)
			return nil
		},
	}
}

func (c *CLI) snapshotListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			bs, err := blob.Open(ctx, cfg.Blob)
			if err != nil {
				return err
			}
			infos, err := bs.List(ctx, core.SnapshotPrefix)
			if err != nil {
				return err
			}
			for _, info := range infos {
				printDetail(cmd.OutOrStdout(), "%s %d bytes", info.Key, info.Size)
			}
			return nil
		},
	}
}
