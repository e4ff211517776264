package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/export"
	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored study guide sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsClearCmd())
	cmd.AddCommand(newSessionsExportCmd())
	cmd.AddCommand(newSessionsImportCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tVISUALIZATIONS\tFAILED\tSOURCE\tCREATED")
			active := a.store.Active()
			for _, s := range a.store.GetAll() {
				failed := 0
				for _, art := range s.Artifacts {
					if art.Status == models.StatusError {
						failed++
					}
				}
				id := s.ID
				if id == active {
					id += " *"
				}
				source := "no"
				if a.store.SourceAvailable(s.ID) {
					source = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", id, s.Title, len(s.Artifacts), failed, source, s.CreatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n := a.store.DeleteMany(cmd.Context(), args)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d of %d sessions\n", n, len(args))
			if n < len(args) {
				return fmt.Errorf("%d sessions not found", len(args)-n)
			}
			return nil
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete every session without --yes")
			}
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n := len(a.store.GetAll())
			a.store.Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d sessions\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}

func newSessionsExportCmd() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sessions as a parquet archive or YAML manifest",
		Long: `Writes every stored session to a file. The parquet archive keeps prose and
generated code and can be loaded again with "sessions import". The YAML
manifest is a readable summary without prose or code. Document bytes are
never exported.`,
		Example: `  studyguide sessions export -o guides.parquet
  studyguide sessions export --format yaml -o guides.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "parquet" && format != "yaml" {
				return fmt.Errorf("unsupported format: %s", format)
			}
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()

			sessions := a.store.GetAll()
			if format == "yaml" {
				err = export.WriteManifest(f, sessions, time.Now())
			} else {
				err = export.WriteParquet(f, sessions)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d sessions to %s\n", len(sessions), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "parquet", "Output format (parquet or yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "sessions.parquet", "Output file")

	return cmd
}

func newSessionsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.parquet>",
		Short: "Load sessions from a parquet archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", args[0], err)
			}

			sessions, err := export.ReadParquet(f, info.Size())
			if err != nil {
				return err
			}

			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, s := range sessions {
				a.store.Add(cmd.Context(), s)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sessions\n", len(sessions))
			return nil
		},
	}
}
