package cmd

import (
	"fmt"
	"os"

	"github.com/lehigh-university-libraries/studyguide/internal/handlers"
	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render [session-id]",
		Short: "Write a session as a standalone HTML page",
		Long: `Writes a stored study guide as a single HTML file with every visualization
attached. Without a session id the active session is rendered.`,
		Example: `  studyguide render -o guide.html
  studyguide render 01912f7e-8c3a-7000-9f2b-3c1d2e4f5a6b -o guide.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sessionID := a.store.Active()
			if len(args) == 1 {
				sessionID = args[0]
			}
			if sessionID == "" {
				return fmt.Errorf("no sessions stored")
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()

			h := handlers.New(handlers.Deps{Store: a.store, Host: a.host})
			if err := h.WritePage(f, sessionID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "studyguide.html", "Output file")

	return cmd
}
