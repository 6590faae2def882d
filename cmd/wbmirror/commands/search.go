package commands

import (
	"os"

	"wbmirror/lib/ratelimit"
	"wbmirror/lib/serviceutil"
	"wbmirror/lib/wayback"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	f := searchCmd.Flags()
	f.StringVar(&flags.fromDate, "from-date", "", "earliest capture date (e.g. 20200101)")
	f.StringVar(&flags.toDate, "to-date", "", "latest capture date")
	f.BoolVar(&flags.uniquesOnly, "uniques-only", false, "list only first-seen captures")
	f.StringVar(&flags.collapse, "collapse", "", "CDX collapse parameter (e.g. timestamp:6)")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <url>",
	Short: "Lists the captures the archive holds for a URL.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		session, err := wayback.NewSession(wayback.SessionOptions{})
		if err != nil {
			serviceutil.Fatal("failed to initialize session", err)
		}

		snapshots, err := wayback.Search(
			cmd.Context(), session, ratelimit.NewDefaultLimiter(), args[0],
			wayback.SearchOptions{
				FromDate:    flags.fromDate,
				ToDate:      flags.toDate,
				UniquesOnly: flags.uniquesOnly,
				Collapse:    flags.collapse,
			},
		)
		if err != nil {
			serviceutil.Fatal("failed to search captures", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Timestamp", "Status", "Mime Type", "Dupes", "Archive URL"})

		for _, snap := range snapshots {
			asset, err := wayback.NewAsset(args[0], snap.Timestamp())
			if err != nil {
				continue
			}
			dupes := snap.Fields["dupecount"]
			t.AppendRow(table.Row{
				snap.Timestamp(),
				snap.Fields["statuscode"],
				snap.Fields["mimetype"],
				dupes,
				asset.ArchiveURL(false),
			})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
