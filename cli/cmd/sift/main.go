package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sift/cli/internal/config"
	"sift/cli/internal/definition"
	"sift/cli/internal/engine"
	"sift/cli/internal/erruser"
	"sift/cli/internal/history"
	"sift/cli/internal/logging"
	"sift/cli/internal/metrics"
	"sift/cli/internal/session"
	"sift/cli/internal/session/badgerstore"
	"sift/cli/internal/trace"
	"sift/cli/internal/version"
	"sift/cli/internal/workspace"
)

// errExit is an error that carries an exit code for the CLI. Use errors.As to detect it.
type errExit int

func (e errExit) Error() string {
	return "exit " + strconv.Itoa(int(e))
}

func main() {
	os.Exit(Run())
}

// Run is the entry point for the CLI. It is exported for testing so that
// main.go can meet per-file coverage requirements.
func Run() int {
	return runCLI(os.Args[1:])
}

func runCLI(args []string) int {
	return execute(args, os.Stdin, os.Stdout, os.Stderr)
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		var exitErr errExit
		if errors.As(err, &exitErr) {
			return int(exitErr)
		}
		fmt.Fprintln(stderr, err)
		if u := errors.Unwrap(err); u != nil {
			fmt.Fprintf(stderr, "Details: %v\n", u)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "sift",
		Short:   "Checklist-driven workflow sessions for agent-assisted code work",
		Version: version.String(),
	}
	pf := rootCmd.PersistentFlags()
	pf.String("root", "", "Workspace root (default: enclosing git repository, else current directory)")
	pf.String("state-dir", "", "State directory for sessions, reports and history (overrides config and env)")
	pf.String("storage", "", "Session store backend: file or badger (overrides config and env)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: text or json")
	pf.Bool("trace", false, "Print internal steps to stderr (discovery order, scan totals, next-action decisions)")
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newNextCmd())
	rootCmd.AddCommand(newProgressCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newWorkflowsCmd())
	rootCmd.AddCommand(newLogCmd())
	rootCmd.AddCommand(newSkillCmd())
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd
}

// app is the wired engine and its collaborators for one command.
type app struct {
	cfg      *config.Config
	root     string
	stateDir string
	log      *slog.Logger
	registry *definition.Registry
	store    session.Store
	journal  *history.Journal
	metrics  *metrics.Metrics
	engine   *engine.Engine
}

func overridesFromFlags(cmd *cobra.Command) *config.Overrides {
	var o config.Overrides
	set := false
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		set = true
		return &v
	}
	o.StateDir = str("state-dir")
	o.Storage = str("storage")
	o.LogLevel = str("log-level")
	o.LogFormat = str("log-format")
	if !set {
		return nil
	}
	return &o
}

// loadConfig resolves the workspace root and loads layered configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	explicit, _ := cmd.Flags().GetString("root")
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", erruser.New("Could not determine current directory.", err)
	}
	root, err := workspace.Resolve(explicit, cwd)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cmd.Context(), config.LoadOptions{Root: root, Overrides: overridesFromFlags(cmd)})
	if err != nil {
		return nil, "", err
	}
	return cfg, root, nil
}

// openApp builds the engine from configuration. Callers must call close.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, root: root, stateDir: cfg.EffectiveStateDir(root)}
	a.log = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	a.registry, err = definition.Builtin()
	if err != nil {
		return nil, erruser.New("Could not load built-in workflow definitions.", err)
	}
	if cfg.WorkflowsDir != "" {
		dir := cfg.WorkflowsDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		loaded, err := a.registry.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		a.log.Debug("workflow definitions loaded", "dir", dir, "types", loaded)
	}

	switch cfg.Storage {
	case config.StorageBadger:
		bcfg := badgerstore.DefaultConfig(filepath.Join(a.stateDir, "badger"))
		bcfg.Logger = a.log
		bs, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, err
		}
		a.store = bs
	default:
		a.store = session.NewFileStore(cfg.SessionsDir(root), cfg.ReportsDir(root))
	}

	a.journal = history.NewJournal(a.stateDir, cfg.HistoryMaxRecords)
	a.metrics = metrics.New()
	key, err := engine.LoadOrCreateKey(filepath.Join(a.stateDir, "batch.key"))
	if err != nil {
		a.store.Close()
		return nil, erruser.New("Could not load the batch signing key.", err)
	}
	var traceOut io.Writer
	if on, _ := cmd.Flags().GetBool("trace"); on {
		traceOut = cmd.ErrOrStderr()
	}
	a.engine, err = engine.New(engine.Options{
		Root:            root,
		Store:           a.store,
		Registry:        a.registry,
		Logger:          a.log,
		Metrics:         a.metrics,
		Tracer:          trace.New(traceOut),
		Journal:         a.journal,
		TokenKey:        key,
		TokenTTL:        cfg.BatchTokenTTL,
		ScanTimeout:     cfg.ScanTimeout,
		ScanConcurrency: cfg.ScanConcurrency,
		MaxFiles:        cfg.MaxFiles,
	})
	if err != nil {
		a.store.Close()
		return nil, err
	}
	return a, nil
}

// close exports metrics when configured and releases the store.
func (a *app) close() {
	if a.cfg.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.log.Warn("metrics textfile write failed", "path", a.cfg.MetricsFile, "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("session store close failed", "error", err)
	}
}

// withApp opens the app, runs fn, and closes the app.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return erruser.New("Could not encode output.", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return erruser.New("Could not write output.", err)
	}
	return nil
}

// sessionError adds a recovery hint for the errors a caller can act on.
func sessionError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: Run 'sift list' to see existing sessions; expired sessions are removed by 'sift cleanup'.")
	case errors.Is(err, session.ErrLocked):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: Another sift process is updating this session; retry when it finishes.")
	case errors.Is(err, engine.ErrFileClosed):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: Run 'sift next <session-id>' to see which file and item are open.")
	case errors.Is(err, definition.ErrUnknownWorkflowType):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: Run 'sift workflows' to list the available workflow types.")
	}
	return err
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <workflow-type>",
		Short: "Start a workflow session: discover files, optionally scan them, and print the session",
		Args:  cobra.ExactArgs(1),
		RunE:  runStart,
	}
	cmd.Flags().String("scope", session.ScopeWorkspace, "Scope: workspace, directory or file")
	cmd.Flags().String("path", "", "Directory or file for --scope directory|file, relative to the workspace root")
	cmd.Flags().StringSlice("include", nil, "Include glob (repeatable; replaces the workflow's file patterns)")
	cmd.Flags().StringSlice("exclude", nil, "Extra exclude glob (repeatable)")
	cmd.Flags().StringSlice("priority", nil, "Priority substring (repeatable; replaces the workflow's priority patterns)")
	cmd.Flags().Int("max-files", 0, "Cap on discovered files (0 = config default)")
	cmd.Flags().Bool("scan", true, "Run the workflow's pattern scan before returning")
	cmd.Flags().StringToString("meta", nil, "Metadata key=value recorded with the session")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	path, _ := cmd.Flags().GetString("path")
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	priority, _ := cmd.Flags().GetStringSlice("priority")
	maxFiles, _ := cmd.Flags().GetInt("max-files")
	scan, _ := cmd.Flags().GetBool("scan")
	meta, _ := cmd.Flags().GetStringToString("meta")
	if maxFiles < 0 {
		return errors.New("--max-files must not be negative.")
	}
	return withApp(cmd, func(a *app) error {
		res, err := a.engine.StartWorkflow(cmd.Context(), engine.StartRequest{
			WorkflowType: args[0],
			Scope:        scope,
			Path:         filepath.ToSlash(path),
			Options: session.Options{
				FilePatterns:     include,
				ExcludePatterns:  exclude,
				PriorityPatterns: priority,
				MaxFiles:         maxFiles,
				Metadata:         meta,
			},
			InitialProcessing: scan,
		})
		if err != nil {
			return sessionError(cmd, err)
		}
		next := engine.NextAction(res.Session)
		return writeJSON(cmd.OutOrStdout(), struct {
			engine.StartResult
			NextAction engine.Action `json:"next_action"`
		}{res, next})
	})
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <session-id>",
		Short: "Print the next action for a session (read-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				act, err := a.engine.GetNextAction(cmd.Context(), args[0])
				if err != nil {
					return sessionError(cmd, err)
				}
				return writeJSON(cmd.OutOrStdout(), act)
			})
		},
	}
}

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <session-id>",
		Short: "Report progress on the current checklist item and print the next action",
		Long: `Report progress on a checklist item. The report is a JSON document
{"completed_action": {...}, "findings": [...], "proposed_changes": [...], "expand_checklist": [...]}
read from --input (use - for stdin). Flags override the completed_action fields.`,
		Args: cobra.ExactArgs(1),
		RunE: runProgress,
	}
	cmd.Flags().String("input", "", "Path to the JSON progress report, or - for stdin")
	cmd.Flags().String("file", "", "File the report is about (default: current file)")
	cmd.Flags().String("item", "", "Checklist item id (default: first open item)")
	cmd.Flags().String("status", "", "Item status: completed (default), skipped, failed, in_progress, pending")
	cmd.Flags().String("type", "", "Completed action type; skip_file or block_file act on the whole file")
	cmd.Flags().String("error", "", "Error message for a failed item")
	return cmd
}

func readProgressReport(cmd *cobra.Command) (engine.ProgressReport, error) {
	var rep engine.ProgressReport
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		return rep, nil
	}
	var r io.Reader
	if input == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(input)
		if err != nil {
			return rep, erruser.New("Could not open progress report.", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rep); err != nil {
		return rep, erruser.New("Could not parse progress report JSON.", err)
	}
	return rep, nil
}

func runProgress(cmd *cobra.Command, args []string) error {
	rep, err := readProgressReport(cmd)
	if err != nil {
		return err
	}
	ca := &rep.CompletedAction
	if v, _ := cmd.Flags().GetString("file"); v != "" {
		ca.File = filepath.ToSlash(v)
	}
	if v, _ := cmd.Flags().GetString("item"); v != "" {
		ca.ChecklistItemID = v
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		ca.Status = session.ItemStatus(strings.ToLower(v))
	}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		ca.Type = v
	}
	if v, _ := cmd.Flags().GetString("error"); v != "" {
		ca.Error = v
	}
	return withApp(cmd, func(a *app) error {
		next, err := a.engine.ReportProgress(cmd.Context(), args[0], rep)
		if err != nil {
			return sessionError(cmd, err)
		}
		return writeJSON(cmd.OutOrStdout(), next)
	})
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <session-id>",
		Short: "Preview (default) or execute a batch operation over pattern instances",
		Long: `Preview a batch operation and print a confirmation token. Re-run with
--execute --token <token> and the same operation and filter to apply it.
Operations: apply_auto_fix, mark_complete, skip.`,
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}
	cmd.Flags().String("operation", engine.OpApplyAutoFix, "Operation: apply_auto_fix, mark_complete or skip")
	cmd.Flags().StringSlice("instance-type", nil, "Instance type to include (repeatable)")
	cmd.Flags().String("file-pattern", "", "Glob over file paths (supports **)")
	cmd.Flags().Bool("auto-fixable-only", false, "Only auto-fixable instances")
	cmd.Flags().StringSlice("status", nil, "Item statuses to include (default pending,in_progress)")
	cmd.Flags().Bool("execute", false, "Execute instead of previewing; requires --token")
	cmd.Flags().String("token", "", "Confirmation token from the preview")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	op, _ := cmd.Flags().GetString("operation")
	types, _ := cmd.Flags().GetStringSlice("instance-type")
	pattern, _ := cmd.Flags().GetString("file-pattern")
	autoOnly, _ := cmd.Flags().GetBool("auto-fixable-only")
	statuses, _ := cmd.Flags().GetStringSlice("status")
	execute, _ := cmd.Flags().GetBool("execute")
	token, _ := cmd.Flags().GetString("token")
	if execute && token == "" {
		return errors.New("--execute requires --token from a preview run.")
	}
	req := engine.BatchRequest{
		Operation:         op,
		Filter:            engine.BatchFilter{InstanceTypes: types, FilePattern: pattern, AutoFixableOnly: autoOnly},
		DryRun:            !execute,
		ConfirmationToken: token,
	}
	for _, s := range statuses {
		req.Filter.Statuses = append(req.Filter.Statuses, session.ItemStatus(strings.ToLower(s)))
	}
	return withApp(cmd, func(a *app) error {
		res, err := a.engine.RunBatch(cmd.Context(), args[0], req)
		if err != nil {
			return sessionError(cmd, err)
		}
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Rejected {
			fmt.Fprintf(cmd.ErrOrStderr(), "Batch rejected: %s\n", res.Reason)
			return errExit(2)
		}
		return nil
	})
}
