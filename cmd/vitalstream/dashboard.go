package main

import (
	"github.com/spf13/cobra"

	"vitalstream/internal/dashboard"
	"vitalstream/internal/sim"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards",
	Long:  "dashboard renders Grafana dashboards for the GreptimeDB and Postgres tables. Datasource uids are read from GREPTIMEDB_DATASOURCE_UID and POSTGRES_DATASOURCE_UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboard.Render(dashboardOut, dashboard.Data{
			ReadingTable: sim.ReadingTable,
			SummaryTable: sim.SummaryTable,
		})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
