package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	// The bsda package should contain all core functionality
	"github.com/google/subcommands"
	bsda "github.com/nh13/basespace-invaders"
	"github.com/rs/zerolog"
)

const programName = "bs-invade"

// a flag that may be given several times
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

// short and long spellings of the same flag
func stringVar(f *flag.FlagSet, p *string, short string, long string, value string, usage string) {
	f.StringVar(p, short, value, usage)
	f.StringVar(p, long, value, "An alias for -"+short)
}

func boolVar(f *flag.FlagSet, p *bool, short string, long string, usage string) {
	f.BoolVar(p, short, false, usage)
	f.BoolVar(p, long, false, "An alias for -"+short)
}

func listVar(f *flag.FlagSet, p *stringList, short string, long string, usage string) {
	f.Var(p, short, usage)
	f.Var(p, long, "An alias for -"+short)
}

// flags shared by every command that queries BaseSpace
type queryFlags struct {
	configPath   string
	clientKey    string
	clientSecret string
	accessToken  string
	sampleIds    stringList
	sampleNames  stringList
	projectIds   stringList
	projectNames stringList
	logFile      string
	verbose      bool
}

func (q *queryFlags) setFlags(f *flag.FlagSet) {
	stringVar(f, &q.configPath, "c", "config", bsda.DefaultConfigPath(),
		"the path to the configuration file (default $HOME/.basespace.cfg)")
	stringVar(f, &q.clientKey, "K", "client-key", "",
		"the developer.basespace.illumina.com client key (prefer the configuration file)")
	stringVar(f, &q.clientSecret, "S", "client-secret", "",
		"the developer.basespace.illumina.com client secret (prefer the configuration file)")
	stringVar(f, &q.accessToken, "A", "access-token", "",
		"the developer.basespace.illumina.com access token (prefer the configuration file)")
	listVar(f, &q.sampleIds, "s", "sample-id",
		"the sample identifier (optional); specify multiple times for multiple samples")
	listVar(f, &q.sampleNames, "x", "sample-name",
		"the sample name (optional); specify multiple times for multiple samples")
	listVar(f, &q.projectIds, "p", "project-id",
		"the project identifier (optional); specify multiple times for multiple projects")
	listVar(f, &q.projectNames, "y", "project-name",
		"the project name (optional); specify multiple times for multiple projects")
	f.StringVar(&q.logFile, "log-file", "", "append a detailed log to this file")
	f.BoolVar(&q.verbose, "verbose", false, "verbose logging")
}

func (q *queryFlags) config() bsda.Config {
	return bsda.Config{
		ConfigPath:   q.configPath,
		ClientKey:    q.clientKey,
		ClientSecret: q.clientSecret,
		AccessToken:  q.accessToken,
		Projects:     bsda.Filter{Names: q.projectNames, Ids: q.projectIds},
		Samples:      bsda.Filter{Names: q.sampleNames, Ids: q.sampleIds},
		LogFile:      q.logFile,
		Verbose:      q.verbose,
	}
}

// everything a command needs to talk to BaseSpace
type session struct {
	cfg     bsda.Config
	logger  zerolog.Logger
	diag    bsda.Diagnostics
	client  *bsda.Client
	closers []io.Closer
}

func (s *session) Close() {
	for _, c := range s.closers {
		c.Close()
	}
}

// Load and validate the configuration, then build the logger and client.
// A failure has already been reported when the status is not ExitSuccess.
func openSession(cfg bsda.Config, stderr io.Writer) (*session, subcommands.ExitStatus) {
	logger, logCloser, err := bsda.NewLogger(cfg.LogFile, cfg.Verbose)
	if err != nil {
		fmt.Fprintln(stderr, "Error: "+err.Error())
		return nil, subcommands.ExitFailure
	}
	diag := bsda.NewStreamDiagnostics(stderr, logger)
	s := &session{logger: logger, diag: diag, closers: []io.Closer{logCloser}}

	cfg, err = bsda.LoadConfig(cfg)
	if err != nil {
		diag.Error(err.Error())
		s.Close()
		return nil, subcommands.ExitFailure
	}
	s.cfg = cfg

	httpClient, err := bsda.NewHttpClient(logger)
	if err != nil {
		diag.Error(err.Error())
		s.Close()
		return nil, subcommands.ExitFailure
	}
	s.client = bsda.NewClient(bsda.NewBsEnvironment(cfg), httpClient)
	return s, subcommands.ExitSuccess
}

// download subcommand
type downloadCmd struct {
	queryFlags
	dryRun    bool
	outputDir string
	flatTree  bool
	noLedger  bool
	noBar     bool

	stderr io.Writer
}

const downloadUsage = programName + " download [-c config] [-p project-id]... [-y project-name]... [-s sample-id]... [-x sample-name]... [-d] [-o dir] [-b]\n"

func (*downloadCmd) Name() string { return "download" }
func (*downloadCmd) Synopsis() string {
	return "Download the files of the selected projects and samples"
}
func (*downloadCmd) Usage() string {
	return downloadUsage
}
func (p *downloadCmd) SetFlags(f *flag.FlagSet) {
	p.queryFlags.setFlags(f)
	boolVar(f, &p.dryRun, "d", "dry-run", "dry run; don't download any files")
	stringVar(f, &p.outputDir, "o", "output-directory", "",
		"the directory in which to store the files (default current directory)")
	boolVar(f, &p.flatTree, "b", "recreate-basespace-dir-tree",
		"do not recreate the basespace directory structure in the output directory; files are stored flat")
	f.BoolVar(&p.noLedger, "no-ledger", false, "do not record completed downloads in the output directory")
	f.BoolVar(&p.noBar, "no-progress", false, "do not show a progress bar for each file")
}

func (p *downloadCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if len(f.Args()) != 0 {
		fmt.Fprint(p.stderr, downloadUsage)
		return subcommands.ExitUsageError
	}
	cfg := p.config()
	cfg.DryRun = p.dryRun
	cfg.OutputDirectory = p.outputDir
	cfg.RecreateTree = !p.flatTree
	cfg.Ledger = !p.noLedger

	s, status := openSession(cfg, p.stderr)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer s.Close()

	var bar io.Writer = p.stderr
	if p.noBar {
		bar = nil
	}
	agent := bsda.NewAgent(s.cfg, s.client, bsda.NewHttpDownloader(s.client, bar), s.diag, s.logger)
	if err := agent.Run(ctx); err != nil {
		s.diag.Error(err.Error())
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// list the projects and samples a download would act on
type listCmd struct {
	queryFlags

	stdout io.Writer
	stderr io.Writer
}

const listUsage = programName + " list [-c config] [-p project-id]... [-y project-name]... [-s sample-id]... [-x sample-name]...\n"

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "List the selected projects and samples" }
func (*listCmd) Usage() string    { return listUsage }
func (p *listCmd) SetFlags(f *flag.FlagSet) {
	p.queryFlags.setFlags(f)
}

func (p *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, status := openSession(p.config(), p.stderr)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer s.Close()

	agent := bsda.NewAgent(s.cfg, s.client, nil, s.diag, s.logger)
	sel, err := agent.Select(ctx)
	if err != nil {
		s.diag.Error(err.Error())
		return subcommands.ExitFailure
	}
	for _, sample := range sel.Samples {
		fmt.Fprintf(p.stdout, "%s\t%s\t%s\t%s\n",
			sample.ProjectId, sample.ProjectName, sample.Id, sample.Name)
	}
	return subcommands.ExitSuccess
}

// Open the ledger of an existing output directory. ok is false when nothing
// was ever downloaded there.
func openExistingLedger(args []string) (ledger *bsda.Ledger, dir string, ok bool, err error) {
	dir = "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, _, err = bsda.ResolveOutputDirectory(dir)
	if err != nil {
		return nil, dir, false, err
	}
	if _, err := os.Stat(bsda.LedgerPath(dir)); os.IsNotExist(err) {
		return nil, dir, false, nil
	}
	ledger, err = bsda.OpenLedger(dir)
	return ledger, dir, err == nil, err
}

type progressCmd struct {
	stdout io.Writer
	stderr io.Writer
}

const progressUsage = programName + " progress [output-directory]\n"

func (*progressCmd) Name() string               { return "progress" }
func (*progressCmd) Synopsis() string           { return "show the downloads recorded in an output directory" }
func (*progressCmd) Usage() string              { return progressUsage }
func (p *progressCmd) SetFlags(f *flag.FlagSet) {}
func (p *progressCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ledger, dir, ok, err := openExistingLedger(f.Args())
	if err != nil {
		fmt.Fprintln(p.stderr, "Error: "+err.Error())
		return subcommands.ExitFailure
	}
	if !ok {
		fmt.Fprintf(p.stdout, "No downloads recorded in %s\n", dir)
		return subcommands.ExitSuccess
	}
	defer ledger.Close()

	summary, err := ledger.Summary()
	if err != nil {
		fmt.Fprintln(p.stderr, "Error: "+err.Error())
		return subcommands.ExitFailure
	}
	fmt.Fprintln(p.stdout, summary)
	return subcommands.ExitSuccess
}

// inspect the files, and see that there are no checksum errors
type inspectCmd struct {
	stdout io.Writer
	stderr io.Writer
}

const inspectUsage = programName + " inspect [output-directory]\n"

func (*inspectCmd) Name() string { return "inspect" }
func (*inspectCmd) Synopsis() string {
	return "Verify the checksums of the files downloaded to an output directory"
}
func (*inspectCmd) Usage() string              { return inspectUsage }
func (p *inspectCmd) SetFlags(f *flag.FlagSet) {}

func (p *inspectCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ledger, dir, ok, err := openExistingLedger(f.Args())
	if err != nil {
		fmt.Fprintln(p.stderr, "Error: "+err.Error())
		return subcommands.ExitFailure
	}
	if !ok {
		fmt.Fprintf(p.stderr, "No downloads recorded in %s\n", dir)
		return subcommands.ExitSuccess
	}
	defer ledger.Close()

	result, err := ledger.Inspect()
	if err != nil {
		fmt.Fprintln(p.stderr, "Error: "+err.Error())
		return subcommands.ExitFailure
	}
	for _, e := range result.Missing {
		fmt.Fprintf(p.stdout, "missing\t%s\t%s\n", e.FileId, e.LocalPath)
	}
	for _, e := range result.Mismatch {
		fmt.Fprintf(p.stdout, "mismatch\t%s\t%s\n", e.FileId, e.LocalPath)
	}
	fmt.Fprintf(p.stderr, "Integrity check complete: %d files checked, %d missing, %d mismatched.\n",
		result.Checked, len(result.Missing), len(result.Mismatch))
	if !result.OK() {
		fmt.Fprintln(p.stderr, "Please re-issue the download command to resolve.")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// get the version
type versionCmd struct {
	stdout io.Writer
}

func (*versionCmd) Name() string               { return "version" }
func (*versionCmd) Synopsis() string           { return "get the version" }
func (*versionCmd) Usage() string              { return "get the " + programName + " version\n" }
func (p *versionCmd) SetFlags(f *flag.FlagSet) {}
func (p *versionCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Fprintln(p.stdout, bsda.Version)
	return subcommands.ExitSuccess
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "-help", "--help":
		return true
	}
	return false
}

// Without a subcommand, the arguments are those of download.
func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 || (strings.HasPrefix(args[0], "-") && !isHelpFlag(args[0])) {
		args = append([]string{"download"}, args...)
	}

	topFlags := flag.NewFlagSet(programName, flag.ContinueOnError)
	topFlags.SetOutput(stderr)
	cdr := subcommands.NewCommander(topFlags, programName)
	cdr.Output = stdout
	cdr.Error = stderr
	cdr.Register(cdr.HelpCommand(), "")
	cdr.Register(cdr.FlagsCommand(), "")
	cdr.Register(cdr.CommandsCommand(), "")
	cdr.Register(&downloadCmd{stderr: stderr}, "")
	cdr.Register(&listCmd{stdout: stdout, stderr: stderr}, "")
	cdr.Register(&progressCmd{stdout: stdout, stderr: stderr}, "")
	cdr.Register(&inspectCmd{stdout: stdout, stderr: stderr}, "")
	cdr.Register(&versionCmd{stdout: stdout}, "")

	if err := topFlags.Parse(args); err != nil {
		return int(subcommands.ExitUsageError)
	}
	return int(cdr.Execute(ctx))
}

// The CLI is simply a wrapper around the bsda package
func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
