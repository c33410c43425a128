package bsda

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Agent runs one download: resolve projects, resolve samples, list their
// files, then fetch the files one at a time.
type Agent struct {
	cfg        Config
	inventory  Inventory
	downloader Downloader
	diag       Diagnostics
	logger     zerolog.Logger

	// free space probe, replaceable for tests
	availableBytes func(dir string) (int64, error)
}

// Selection is the outcome of resolving the project and sample filters.
type Selection struct {
	User     *User
	Projects []Project
	Samples  []Sample
}

func NewAgent(cfg Config, inventory Inventory, downloader Downloader, diag Diagnostics, logger zerolog.Logger) *Agent {
	return &Agent{
		cfg:            cfg,
		inventory:      inventory,
		downloader:     downloader,
		diag:           diag,
		logger:         logger,
		availableBytes: getAvailableBytes,
	}
}

// Select resolves the project filter against the user's projects, then the
// sample filter against the samples of the resolved projects.
func (a *Agent) Select(ctx context.Context) (*Selection, error) {
	allProjects, err := a.inventory.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	user, err := a.inventory.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	userContext := UserContext(user)
	a.logger.Debug().Int("projects", len(allProjects)).Str("user", user.Name).Msg("listed projects")

	projects := Resolve(a.cfg.Projects, allProjects, "project", userContext, a.diag)

	var allSamples []Sample
	for _, p := range projects {
		samples, err := a.inventory.ListSamples(ctx, p)
		if err != nil {
			return nil, err
		}
		allSamples = append(allSamples, samples...)
	}
	a.logger.Debug().Int("samples", len(allSamples)).Msg("listed samples")

	samples := Resolve(a.cfg.Samples, allSamples, "sample", userContext, a.diag)
	return &Selection{User: user, Projects: projects, Samples: samples}, nil
}

// EnumerateFiles concatenates the file listings of the samples, keeping
// sample order and the order of each listing.
func (a *Agent) EnumerateFiles(ctx context.Context, samples []Sample) ([]FileEntry, error) {
	var files []FileEntry
	for _, s := range samples {
		sampleFiles, err := a.inventory.ListFiles(ctx, s)
		if err != nil {
			return nil, err
		}
		files = append(files, sampleFiles...)
	}
	return files, nil
}

func (a *Agent) outputDirectory() (string, error) {
	outDir, isDefault, err := ResolveOutputDirectory(a.cfg.OutputDirectory)
	if err != nil {
		return "", err
	}
	if isDefault {
		a.diag.Info(fmt.Sprintf("Output directory not specified; using current directory (%s)", outDir))
	}
	if !a.cfg.DryRun {
		if err := SafeMakedir(outDir); err != nil {
			return "", err
		}
	}
	return outDir, nil
}

// Check that we have enough disk space for all the files. A shortfall is
// only reported.
func (a *Agent) checkDiskSpace(outDir string, files []FileEntry) {
	var totalSizeBytes int64
	for _, f := range files {
		totalSizeBytes += f.Size
	}
	availableBytes, err := a.availableBytes(outDir)
	if err != nil {
		a.logger.Warn().Err(err).Msg("could not determine available disk space")
		return
	}
	if availableBytes < totalSizeBytes {
		a.diag.Warn(fmt.Sprintf("Not enough disk space, available = %s, required = %s",
			diskSpaceString(availableBytes), diskSpaceString(totalSizeBytes)))
		return
	}
	a.logger.Info().
		Int64("required", totalSizeBytes).
		Int64("available", availableBytes).
		Msg("disk space check passed")
}

// Run performs the whole download. The first transfer error stops the run
// and is returned; files already written stay on disk.
func (a *Agent) Run(ctx context.Context) error {
	outDir, err := a.outputDirectory()
	if err != nil {
		return err
	}

	sel, err := a.Select(ctx)
	if err != nil {
		return err
	}
	files, err := a.EnumerateFiles(ctx, sel.Samples)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		a.diag.Error("no files found to download.")
		return nil
	}

	a.diag.Info(fmt.Sprintf("Found %d files to download: ", len(files)))
	for _, f := range files {
		a.diag.Info(fmt.Sprintf("\t- %s", f))
	}
	a.diag.Info(fmt.Sprintf("Downloading files to output directory %s", outDir))
	if a.cfg.RecreateTree {
		a.diag.Info("Recreating BaseSpace project directory tree for file.")
	}

	// a dry run does not create the output directory
	if info, err := os.Stat(outDir); err == nil && info.IsDir() {
		a.checkDiskSpace(outDir, files)
	}

	var ledger *Ledger
	if a.cfg.DryRun {
		a.diag.Info("-> Dry run: not downloading any data.")
	} else if a.cfg.Ledger {
		ledger, err = OpenLedger(outDir)
		if err != nil {
			return err
		}
		defer ledger.Close()
	}

	for i, f := range files {
		a.diag.Info(fmt.Sprintf("[%d/%d] Downloading file \"%s\"", i+1, len(files), f))
		if a.cfg.DryRun {
			continue
		}
		result, err := a.downloader.Download(ctx, f, outDir, a.cfg.RecreateTree)
		if err != nil {
			return fmt.Errorf("download of %s failed: %w", f.Id, err)
		}
		a.logger.Info().
			Str("file_id", f.Id).
			Str("path", result.LocalPath).
			Int64("bytes", result.Bytes).
			Msg("downloaded")
		if ledger != nil {
			err := ledger.Record(LedgerEntry{
				FileId:    f.Id,
				SampleId:  f.SampleId,
				ProjectId: f.ProjectId,
				Name:      f.Name,
				LocalPath: result.LocalPath,
				Size:      result.Bytes,
				Checksum:  result.Checksum,
			})
			if err != nil {
				return err
			}
		}
	}
	a.diag.Info(fmt.Sprintf("Download completed; files are located in \"%s\"", outDir))
	return nil
}
