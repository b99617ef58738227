package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"widgetcore/internal/core"
	"widgetcore/pkg/domain"
)

func (c *CLI) widgetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "Inspect widgets in the configured store",
	}
	cmd.AddCommand(c.widgetsListCommand())
	return cmd
}

func (c *CLI) widgetsListCommand() *cobra.Command {
	var (
		page, size int
		area       []int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of widgets in index order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req := core.ListRequest{}
			if cmd.Flags().Changed("page") {
				req.Page = &page
			}
			if cmd.Flags().Changed("size") {
				req.Size = &size
			}
			if cmd.Flags().Changed("area") {
				if len(area) != 4 {
					return fmt.Errorf("--area takes x,y,width,height, got %d values", len(area))
				}
				req.Area = &domain.AreaFilter{X: area[0], Y: area[1], Width: area[2], Height: area[3]}
			}

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			svc, closeStore, err := c.openService(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			result, err := svc.List(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderWidgetTable(result))
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "zero-based page number")
	cmd.Flags().IntVar(&size, "size", 0, "page size (defaults to paging.default_size)")
	cmd.Flags().IntSliceVar(&area, "area", nil, "only widgets fully inside x,y,width,height")
	return cmd
}
