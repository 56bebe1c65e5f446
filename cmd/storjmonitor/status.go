package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cuemby/storjmonitor/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured nodes and the local database without starting the monitor",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("config", "", "Path to storjmonitor.yaml (optional; env vars and --node flags still apply)")
	statusCmd.Flags().StringArray("node", nil, "Node in NAME:/path/to/log or NAME:host:port form; repeatable")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	nodeFlags, _ := cmd.Flags().GetStringArray("node")

	cfg, err := config.Load(configPath, nodeFlags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Node", "Source", "Location", "Admin API"})
	for _, n := range cfg.Nodes {
		location := n.Path
		if location == "" {
			location = n.Address
		}
		apiAddr := n.APIAddress
		if apiAddr == "" {
			apiAddr = "auto-discover"
		}
		tbl.AppendRow(table.Row{n.Name, n.Source, location, apiAddr})
	}
	tbl.Render()

	if info, err := os.Stat(cfg.Store.DatabaseFile); err == nil {
		fmt.Printf("\ndatabase %s: %s\n", cfg.Store.DatabaseFile, humanize.Bytes(uint64(info.Size())))
	} else {
		fmt.Printf("\ndatabase %s: not yet created\n", cfg.Store.DatabaseFile)
	}

	return nil
}
