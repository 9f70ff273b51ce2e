package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/wellspace/internal/gateway"
)

var layoutsProject string

var layoutsCmd = &cobra.Command{
	Use:   "layouts",
	Short: "List or delete saved layouts of a project",
}

var layoutsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved layouts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		gw, err := openGateway(ctx, cfg)
		if err != nil {
			return err
		}
		defer gw.Close()

		list, err := gw.List(ctx, layoutsProject)
		if err != nil {
			return err
		}
		active := ""
		if as, ok := gw.(gateway.ActiveStore); ok {
			active, _ = as.Active(ctx, layoutsProject)
		}
		if active == "" {
			active = cfg.DefaultLayoutName
		}

		if len(list) == 0 {
			fmt.Println(color.YellowString("No saved layouts for %s", layoutsProject))
			return nil
		}
		fmt.Println(color.CyanString("Layouts of %s:", layoutsProject))
		for _, s := range list {
			marker := "  "
			name := s.LayoutName
			if name == active {
				marker = "* "
				name = color.GreenString(name)
			}
			fmt.Printf("%s%s  %s\n", marker, name, s.SavedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var layoutsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		gw, err := openGateway(ctx, cfg)
		if err != nil {
			return err
		}
		defer gw.Close()

		if err := gw.Delete(ctx, layoutsProject, args[0]); err != nil {
			return err
		}
		fmt.Println(color.GreenString("Deleted %s", args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(layoutsCmd)
	layoutsCmd.AddCommand(layoutsListCmd, layoutsDeleteCmd)
	layoutsCmd.PersistentFlags().StringVar(&layoutsProject, "project", "", "Project path")
	_ = layoutsCmd.MarkPersistentFlagRequired("project")
}
