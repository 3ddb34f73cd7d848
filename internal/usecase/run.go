// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/config"
	"github.com/eliteGoblin/osmigrate/internal/domain"
	"github.com/eliteGoblin/osmigrate/internal/report"
)

// Environment toggles read by Execute and Remediate.
const (
	envDisableTelemetry = "RHC_WORKER_CONVERT2RHEL_DISABLE_TELEMETRY"
	envPayAsYouGo       = "RHC_WORKER_CONVERT2RHEL_PAYG"
)

// toolDisableTelemetry is the variable name the tool itself understands.
const toolDisableTelemetry = "CONVERT2RHEL_DISABLE_TELEMETRY"

const eligibleRelease = "7.9"

// Deps groups the collaborators the orchestrator drives. All of them are
// interfaces so scenario tests can stub the host.
type Deps struct {
	Exec       domain.CommandRunner
	Downloader domain.Downloader
	Packages   domain.PackageManager
	Services   domain.ServiceManager
	Inventory  domain.InventoryClient
	Preserver  domain.FilePreserver
	Host       domain.HostInspector
	Processes  domain.ProcessScanner
	History    domain.RunHistory
}

// Runner sequences one unattended conversion run: eligibility, setup,
// prechecks, transactional install, tool execution, rollback detection,
// report reconciliation and compensating cleanup. It owns the required-file
// list and the undo ledger for the run's lifetime and always produces exactly
// one Verdict.
type Runner struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
}

// NewRunner creates a run orchestrator.
func NewRunner(cfg *config.Config, deps Deps, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// runState accumulates the side effects of one run that cleanup must be able
// to reverse. Mutated only by the orchestrator.
type runState struct {
	required       []*domain.RequiredFile
	ledger         *domain.UndoLedger
	freshInstall   bool
	txID           string
	conversionOK   bool
	rollbackErrors string
}

// Run executes one end-to-end conversion run and returns its Verdict. It
// never returns an error and never panics: every failure is converted into
// the Verdict, and the finalize/cleanup phase executes on every path.
func (r *Runner) Run(ctx context.Context) domain.Verdict {
	startedAt := time.Now()

	r.archiveOldReports()

	st := &runState{ledger: &domain.UndoLedger{}}
	for _, f := range r.cfg.RequiredFiles {
		st.required = append(st.required, &domain.RequiredFile{
			Path:       f.Path,
			Source:     f.Source,
			SigningKey: f.SigningKey,
		})
	}

	var verdict domain.Verdict
	if err := r.runSteps(ctx, st); err != nil {
		if cond, ok := domain.AsCondition(err); ok {
			r.logger.Error("run aborted",
				zap.String("kind", cond.Kind.String()),
				zap.String("report", cond.Report))
			verdict = domain.Verdict{
				Status:  string(domain.SeverityError),
				Alert:   true,
				Message: cond.Message,
				Report:  cond.Report,
			}
		} else {
			r.logger.Error("run failed unexpectedly", zap.Error(err))
			verdict = domain.Verdict{
				Status:  string(domain.SeverityError),
				Alert:   true,
				Message: "An unexpected error occurred. Expand the row for more details.",
				Report:  err.Error(),
			}
		}
	} else {
		r.logger.Info("conversion run finished successfully")
	}

	r.finalize(ctx, &verdict, st)

	if r.deps.History != nil {
		if err := r.deps.History.Append(startedAt, verdict); err != nil {
			r.logger.Warn("failed to record run history", zap.Error(err))
		}
	}
	return verdict
}

// runSteps drives the forward path of the state machine. A panic anywhere in
// it degrades to an error so the caller still reaches finalize.
func (r *Runner) runSteps(ctx context.Context, st *runState) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()

	if err := r.checkEligibility(); err != nil {
		return err
	}
	if err := r.setupTool(ctx, st); err != nil {
		return err
	}
	if err := r.checkPreconditions(ctx); err != nil {
		return err
	}
	if err := r.installTool(ctx, st); err != nil {
		return err
	}
	if err := r.executeTool(ctx, st); err != nil {
		return err
	}
	return r.remediate(ctx)
}

// checkEligibility aborts unless the host runs the single supported
// distribution and release. No side effects have happened yet, so this
// failure leaves the host untouched.
func (r *Runner) checkEligibility() error {
	dist, version, err := r.deps.Host.DistroVersion()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(dist, "centos") || version != eligibleRelease {
		return domain.NewCondition(
			domain.KindEligibility,
			fmt.Sprintf("Conversion is only supported on CentOS %s distributions.", eligibleRelease),
			fmt.Sprintf("Exiting because distribution=%q and version=%q", titleCase(dist), version),
		)
	}
	return nil
}

// setupTool downloads every required file, preserving anything already at the
// destination so cleanup can restore it. Any I/O failure here is fatal.
func (r *Runner) setupTool(ctx context.Context, st *runState) error {
	r.logger.Info("downloading required files")
	for _, f := range st.required {
		if _, err := r.deps.Preserver.Preserve(f.Path); err != nil {
			return err
		}

		var data []byte
		var err error
		if f.SigningKey {
			data, err = r.deps.Downloader.FetchSigningKey(ctx, f.Source)
		} else {
			data, err = r.deps.Downloader.Fetch(ctx, f.Source)
		}
		if err != nil {
			return err
		}

		dir := filepath.Dir(f.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			r.logger.Info("creating directory", zap.String("dir", dir))
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}

		r.logger.Info("writing file to destination", zap.String("path", f.Path))
		if err := os.WriteFile(f.Path, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// checkPreconditions aborts on any manually altered tool configuration or a
// conflicting running instance. These are user-actionable conditions, not
// crashes.
func (r *Runner) checkPreconditions(ctx context.Context) error {
	custom := r.cfg.CustomConfigAbs()
	if _, err := os.Stat(custom); err == nil {
		return domain.NewCondition(
			domain.KindPrecondition,
			fmt.Sprintf("Custom %s was found.", custom),
			fmt.Sprintf("Remove the %s file by running 'rm -f %s' before running the Task again.",
				custom, custom),
		)
	}

	modified, err := r.deps.Packages.ConfigModified(ctx, r.cfg.PackageName, r.cfg.DefaultConfigPath)
	if err != nil {
		return err
	}
	if modified {
		ini := r.cfg.DefaultConfigPath
		pkg := r.cfg.PackageName
		return domain.NewCondition(
			domain.KindPrecondition,
			fmt.Sprintf("According to 'rpm -Va' command %s was modified.", ini),
			fmt.Sprintf("Either remove the %s file by running 'rm -f %s' or uninstall %s by running "+
				"'yum remove %s' before running the Task again.", ini, ini, pkg, pkg),
		)
	}

	if r.deps.Processes != nil {
		tool := filepath.Base(r.cfg.ToolPath)
		pids, err := r.deps.Processes.FindByName(tool)
		if err != nil {
			r.logger.Warn("process scan failed", zap.Error(err))
		} else if len(pids) > 0 {
			return domain.NewCondition(
				domain.KindPrecondition,
				fmt.Sprintf("Another instance of %s is already running.", tool),
				fmt.Sprintf("Detected running %s process(es) with PID(s) %v. Wait for them to "+
					"finish before running the Task again.", tool, pids),
			)
		}
	}
	return nil
}

// installTool performs the transactional install. An undo handle is
// registered only for a fresh install; updates are never reversed.
func (r *Runner) installTool(ctx context.Context, st *runState) error {
	fresh, txID, err := r.deps.Packages.EnsureInstalled(ctx, r.cfg.PackageName)
	if err != nil {
		return err
	}
	st.freshInstall = fresh
	st.txID = txID
	if fresh && txID != "" {
		st.ledger.Register(txID)
	}
	return nil
}

// executeTool runs the conversion tool with a minimal environment and
// classifies the outcome. On a non-zero exit, rollback errors in the tool's
// log take priority over the generic analysis failure: they mean the host is
// in an undefined state.
func (r *Runner) executeTool(ctx context.Context, st *runState) error {
	r.logger.Info("running conversion tool", zap.String("tool", r.cfg.ToolPath))

	env := map[string]string{"PATH": os.Getenv("PATH")}
	if v, ok := os.LookupEnv(envDisableTelemetry); ok {
		env[toolDisableTelemetry] = v
	}

	output, code, err := r.deps.Exec.RunWithEnv(ctx, []string{r.cfg.ToolPath, "-y"}, env)
	if err != nil {
		return err
	}
	st.conversionOK = code == 0

	r.logger.Info("checking log for possible rollback problems", zap.String("log", r.cfg.LogFile))
	st.rollbackErrors = report.DetectRollbackErrors(r.cfg.LogFile)

	if !st.conversionOK {
		if st.rollbackErrors != "" {
			return domain.NewCondition(
				domain.KindRollbackFailed,
				fmt.Sprintf("A rollback of changes performed by %s failed. The system is in an "+
					"undefined state. Recover the system from a backup or contact Red Hat support.",
					r.cfg.PackageName),
				fmt.Sprintf("\nFor details, refer to the %s log file on the host at %s. "+
					"Relevant lines from log file: \n%s\n",
					r.cfg.PackageName, r.cfg.LogFile, st.rollbackErrors),
			)
		}
		return domain.NewCondition(
			domain.KindAnalysisFailed,
			fmt.Sprintf("An error occurred during the pre-conversion analysis. For details, refer "+
				"to the %s log file on the host at %s", r.cfg.PackageName, r.cfg.LogFile),
			fmt.Sprintf("%s exited with code %d.\nOutput of the failed command: %s",
				r.cfg.PackageName, code, strings.TrimRight(output, "\n")),
		)
	}
	return nil
}

// remediate runs the post-success steps. A failure here alerts but never
// reverses the already-successful conversion.
func (r *Runner) remediate(ctx context.Context) error {
	if err := r.configureMetering(ctx); err != nil {
		return err
	}
	return r.refreshInventory(ctx)
}

// configureMetering installs, enables and starts the metering add-on when the
// pay-as-you-go toggle is set to exactly "yes".
func (r *Runner) configureMetering(ctx context.Context) error {
	if os.Getenv(envPayAsYouGo) != "yes" {
		r.logger.Info("skipping host-metering configuration")
		return nil
	}

	errMsg := "Conversion succeeded but host-metering configuration failed."

	r.logger.Info("installing host-metering rpms")
	output, code, err := r.deps.Packages.InstallPackage(ctx, r.cfg.MeteringPackage)
	if err != nil {
		return err
	}
	r.logger.Info("output of yum call", zap.String("output", output))
	if code != 0 {
		return domain.NewCondition(domain.KindRemediation, errMsg,
			fmt.Sprintf("Failed to install host-metering rpms: \n%s\n", output))
	}

	output, code, err = r.deps.Services.Enable(ctx, r.cfg.MeteringService)
	if err != nil {
		return err
	}
	r.logger.Info("output of systemctl call", zap.String("output", output))
	if code != 0 {
		return domain.NewCondition(domain.KindRemediation, errMsg,
			fmt.Sprintf("Failed to enable host-metering service: \n%s\n", output))
	}

	output, code, err = r.deps.Services.Start(ctx, r.cfg.MeteringService)
	if err != nil {
		return err
	}
	r.logger.Info("output of systemctl call", zap.String("output", output))
	if code != 0 {
		return domain.NewCondition(domain.KindRemediation, errMsg,
			fmt.Sprintf("Failed to start host-metering service: \n%s\n", output))
	}
	return nil
}

// refreshInventory re-registers the host so the inventory reflects the
// converted system.
func (r *Runner) refreshInventory(ctx context.Context) error {
	output, code, err := r.deps.Inventory.Refresh(ctx)
	if err != nil {
		return err
	}
	if code != 0 {
		return domain.NewCondition(
			domain.KindInventory,
			"Conversion succeeded but update of Insights Inventory by registering the system again failed.",
			fmt.Sprintf("insights-client execution exited with code '%d' and output:\n%s",
				code, strings.TrimRight(output, "\n")),
		)
	}
	r.logger.Info("system registered in inventory successfully")
	return nil
}

// finalize always executes, exception or not. It reconciles the structured
// report when no rollback errors were seen, marks side effects as kept on a
// non-alerting success, attaches the free-text fallback, and then runs
// compensating cleanup unconditionally.
func (r *Runner) finalize(ctx context.Context, verdict *domain.Verdict, st *runState) {
	r.logger.Info("collecting reports")
	data := report.Load(r.cfg.ReportFile)

	// A report written while the tool rolled back unsuccessfully is not
	// trustworthy; the rollback-failed verdict stands as-is.
	if len(data.Actions) > 0 && st.rollbackErrors == "" {
		if highest, ok := report.HighestSeverity(data.Actions); ok {
			verdict.Status = string(highest)
			verdict.Message, verdict.Alert = reportMessage(highest)

			if !verdict.Alert {
				for _, f := range st.required {
					f.Keep = true
				}
				if st.freshInstall && st.txID != "" {
					st.ledger.Clear(st.txID)
				}
			}

			if !st.conversionOK {
				verdict.ReportJSON = domain.NewReportEnvelope(report.Flatten(data.Actions))
			}
		}
	}

	// Fall back to the free-text report when nothing else filled the report
	// field on an unsuccessful run.
	if verdict.Report == "" && !st.conversionOK {
		verdict.Report = report.LoadText(r.cfg.ReportTxtFile)
	}

	r.logger.Info("cleaning up modifications to the system")
	r.cleanup(ctx, st)
}

// cleanup removes or restores every required file not marked keep and undoes
// every pending package transaction. It is best-effort: its own failures are
// logged but never mask the primary result.
func (r *Runner) cleanup(ctx context.Context, st *runState) {
	for _, f := range st.required {
		if f.Keep {
			continue
		}
		if _, err := os.Stat(f.Path); err == nil {
			r.logger.Info("removing previously downloaded file", zap.String("path", f.Path))
			if err := os.Remove(f.Path); err != nil {
				r.logger.Warn("failed to remove file", zap.String("path", f.Path), zap.Error(err))
			}
		}
		if _, err := r.deps.Preserver.Preserve(f.Path); err != nil {
			r.logger.Warn("failed to restore backup", zap.String("path", f.Path), zap.Error(err))
		}
	}

	for _, txID := range st.ledger.Pending() {
		if err := r.deps.Packages.UndoTransaction(ctx, txID); err != nil {
			r.logger.Warn("undo of yum transaction failed",
				zap.String("transaction", txID),
				zap.Error(err))
		}
	}
}

// archiveOldReports moves any pre-existing report files into the archive
// directory before the run begins. Best-effort: a failed archive must not
// prevent the run from emitting a verdict.
func (r *Runner) archiveOldReports() {
	for _, path := range []string{r.cfg.ReportFile, r.cfg.ReportTxtFile} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := r.deps.Preserver.Archive(path, r.cfg.ArchiveDir); err != nil {
			r.logger.Warn("failed to archive previous report", zap.String("path", path), zap.Error(err))
		}
	}
}

// reportMessage derives the operator-facing message and alert flag from the
// highest severity found in the report. Anything above WARNING inhibits the
// conversion.
func reportMessage(highest domain.Severity) (string, bool) {
	if highest.MoreSevereThan(domain.SeverityWarning) {
		return "The conversion cannot proceed. You must resolve existing issues to perform the conversion.", true
	}
	return "No problems found. The system was converted successfully. Please, reboot your system " +
		"at your earliest convenience to make sure that the system is using the RHEL Kernel.", false
}

// titleCase uppercases the first letter of each word, for the operator-facing
// distribution name in eligibility reports.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
