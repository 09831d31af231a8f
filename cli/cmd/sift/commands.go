package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sift/cli/internal/config"
	"sift/cli/internal/erruser"
	"sift/cli/internal/findings"
	"sift/cli/internal/report"
	"sift/cli/internal/skill"
	"sift/cli/internal/version"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Generate the session report (also saved under the reports directory)",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	cmd.Flags().String("format", string(report.FormatMarkdown), "Report format: markdown or json")
	cmd.Flags().StringP("out", "o", "", "Also write the report to this file")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(raw)
	if err != nil {
		return erruser.New("Invalid report format; use markdown or json.", err)
	}
	out, _ := cmd.Flags().GetString("out")
	return withApp(cmd, func(a *app) error {
		text, err := a.engine.GenerateReport(cmd.Context(), args[0], format)
		if err != nil {
			return sessionError(cmd, err)
		}
		if out != "" {
			if err := os.WriteFile(out, []byte(text), 0644); err != nil {
				return erruser.New("Could not write report file.", err)
			}
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	})
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Report session status (files, checklist progress, findings)",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "Print the full session as JSON")
	cmd.Flags().BoolP("files", "f", false, "List every file with its status and open items")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	showFiles, _ := cmd.Flags().GetBool("files")
	return withApp(cmd, func(a *app) error {
		s, err := a.engine.GetSession(cmd.Context(), args[0])
		if err != nil {
			return sessionError(cmd, err)
		}
		w := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(w, s)
		}
		fmt.Fprintf(w, "session: %s\n", s.ID)
		fmt.Fprintf(w, "workflow: %s\n", s.WorkflowType)
		fmt.Fprintf(w, "status: %s\n", s.Status)
		if s.StatusReason != "" {
			fmt.Fprintf(w, "reason: %s\n", s.StatusReason)
		}
		if s.CurrentPhase != "" {
			fmt.Fprintf(w, "phase: %s\n", s.CurrentPhase)
		}
		fmt.Fprintf(w, "files: %d/%d completed\n", s.FilesCompleted, s.FilesTotal)
		if s.InstancesTotal > 0 {
			fmt.Fprintf(w, "instances: %d/%d completed, %d auto-fixed, %d manual review\n",
				s.InstancesCompleted, s.InstancesTotal, s.InstancesAutoFixed, s.InstancesManualReview)
		}
		h := findings.Count(s.Findings)
		fmt.Fprintf(w, "findings: %d (critical %d, error %d, warning %d, info %d)\n", h.Total(), h.Critical, h.Error, h.Warning, h.Info)
		fmt.Fprintf(w, "proposed_changes: %d\n", len(s.ProposedChanges))
		fmt.Fprintf(w, "updated_at: %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"))
		if !showFiles {
			return nil
		}
		fmt.Fprintln(w, "---")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for i, f := range s.FileInventory {
			open := 0
			for _, it := range f.Checklist {
				if !it.Status.Terminal() {
					open++
				}
			}
			marker := " "
			if i == s.CurrentFileIndex {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d open\n", marker, f.Path, f.Status, open, len(f.Checklist))
		}
		return tw.Flush()
	})
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions in this workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				list, err := a.engine.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(w, "No sessions. Run 'sift start <workflow-type>' to begin.")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n", s.ID, s.WorkflowType, s.Status,
						s.FilesCompleted, s.FilesTotal, s.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session (saved reports are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.engine.DeleteSession(cmd.Context(), args[0]); err != nil {
					return sessionError(cmd, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			})
		},
	}
}

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions not updated within the retention window",
		Args:  cobra.NoArgs,
		RunE:  runCleanup,
	}
	cmd.Flags().String("retention", "", "Retention window, e.g. 7d or 36h (default from config)")
	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("retention")
	return withApp(cmd, func(a *app) error {
		retention := a.cfg.Retention
		if raw != "" {
			d, err := config.ParseRetention(raw)
			if err != nil {
				return erruser.New("Invalid --retention; use a duration such as 7d or 36h.", err)
			}
			retention = d
		}
		res, err := a.engine.Cleanup(cmd.Context(), retention)
		w := cmd.OutOrStdout()
		for _, id := range res.Deleted {
			fmt.Fprintf(w, "Deleted %s\n", id)
		}
		if err != nil {
			return erruser.New("Cleanup stopped early.", err)
		}
		fmt.Fprintf(w, "%d session(s) removed (not updated since %s).\n", len(res.Deleted), res.Cutoff.Format("2006-01-02 15:04"))
		return nil
	})
}

func newWorkflowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "List available workflow types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(cmd, func(a *app) error {
				w := cmd.OutOrStdout()
				types := a.registry.Types()
				if asJSON {
					var defs []any
					for _, t := range types {
						def, err := a.registry.Get(t)
						if err != nil {
							return err
						}
						defs = append(defs, def)
					}
					return writeJSON(w, defs)
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, t := range types {
					def, err := a.registry.Get(t)
					if err != nil {
						return err
					}
					scan := ""
					if def.ScanEnabled() {
						scan = "pattern scan"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t, def.Name, scan)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Bool("json", false, "Print full definitions as JSON")
	return cmd
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log [session-id]",
		Short: "Show the session history journal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("limit")
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			return withApp(cmd, func(a *app) error {
				recs, err := a.journal.Records(id, n)
				if err != nil {
					return erruser.New("Could not read session history.", err)
				}
				w := cmd.OutOrStdout()
				for _, r := range recs {
					fmt.Fprintf(w, "%s  %s  %-8s", r.At.Format("2006-01-02 15:04:05"), r.SessionID, r.Event)
					if r.File != "" {
						fmt.Fprintf(w, "  %s", r.File)
					}
					if r.Status != "" {
						fmt.Fprintf(w, "  %s", r.Status)
					}
					if len(r.Findings) > 0 || len(r.ProposedChanges) > 0 {
						fmt.Fprintf(w, "  findings=%d changes=%d", len(r.Findings), len(r.ProposedChanges))
					}
					if r.Detail != "" {
						fmt.Fprintf(w, "  %s", r.Detail)
					}
					fmt.Fprintln(w)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntP("limit", "n", 50, "Show only the last n records (0 = all)")
	return cmd
}

func newSkillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skill",
		Short: "Print the SKILL.md that teaches an agent to drive sift sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), skill.SKILL(version.String()))
			return err
		},
	}
}
