package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lehigh-university-libraries/studyguide/internal/document"
	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/lehigh-university-libraries/studyguide/internal/placeholder"
	"github.com/lehigh-university-libraries/studyguide/internal/regenerate"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var fillMissing bool

	cmd := &cobra.Command{
		Use:   "analyze <pdf>...",
		Short: "Analyze PDFs and store the resulting study guides",
		Long: `Runs the same analysis as an upload in the web interface and stores each
result as a session. Sessions created here show up in "studyguide serve".

With --fill-missing, every placeholder the model referenced but did not
supply code for is generated with a follow-up call.`,
		Example: `  # Analyze one document
  studyguide analyze lecture-03.pdf

  # Analyze a folder and fill gaps
  studyguide analyze --fill-missing notes/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				session, err := analyzeFile(cmd, a, path, fillMissing)
				if err != nil {
					slog.Error("Analysis failed", "path", path, "err", err)
					failed++
					continue
				}
				ready := 0
				for _, art := range session.Artifacts {
					if art.Status == models.StatusReady {
						ready++
					}
				}
				fmt.Fprintf(out, "%s\t%s\t%d/%d visualizations ready\n", session.ID, session.Title, ready, len(placeholder.Parse(session.Prose)))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fillMissing, "fill-missing", false, "Generate visualizations the analysis referenced but did not supply")

	return cmd
}

func analyzeFile(cmd *cobra.Command, a *app, path string, fillMissing bool) (*models.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := document.Read(f, filepath.Base(path), "", a.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	res, err := a.analysis.Analyze(ctx, doc)
	if err != nil {
		return nil, err
	}
	session, err := a.analysis.NewSession(doc, res)
	if err != nil {
		return nil, err
	}
	a.store.Add(ctx, session)

	if fillMissing {
		seen := make(map[string]bool)
		for _, m := range placeholder.Parse(session.Prose) {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			if art, ok := session.Artifact(m.ID); ok && art.Status == models.StatusReady {
				continue
			}
			_, err := a.workflow.Regenerate(ctx, regenerate.Request{
				SessionID:   session.ID,
				ArtifactID:  m.ID,
				Description: m.Description,
				Supplied:    doc.Data,
			})
			if err != nil {
				slog.Warn("Could not fill visualization", "session_id", session.ID, "artifact_id", m.ID, "err", err)
			}
		}
		a.workflow.Wait()
	}

	stored, _ := a.store.Get(session.ID)
	return stored, nil
}
