package bsda

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInventory struct {
	user     User
	projects []Project
	samples  map[string][]Sample    // by project id
	files    map[string][]FileEntry // by sample id

	listedSamplesOf []string
}

func (f *fakeInventory) CurrentUser(ctx context.Context) (*User, error) {
	u := f.user
	return &u, nil
}

func (f *fakeInventory) ListProjects(ctx context.Context) ([]Project, error) {
	return f.projects, nil
}

func (f *fakeInventory) ListSamples(ctx context.Context, p Project) ([]Sample, error) {
	f.listedSamplesOf = append(f.listedSamplesOf, p.Id)
	return f.samples[p.Id], nil
}

func (f *fakeInventory) ListFiles(ctx context.Context, s Sample) ([]FileEntry, error) {
	return f.files[s.Id], nil
}

type downloadCall struct {
	file         FileEntry
	outputDir    string
	recreateTree bool
}

type fakeDownloader struct {
	calls  []downloadCall
	failOn string
}

func (d *fakeDownloader) Download(ctx context.Context, f FileEntry, outputDir string, recreateTree bool) (DownloadResult, error) {
	d.calls = append(d.calls, downloadCall{f, outputDir, recreateTree})
	if f.Id == d.failOn {
		return DownloadResult{}, errors.New("connection reset")
	}
	return DownloadResult{LocalPath: filepath.Join(outputDir, f.Name), Bytes: f.Size, Checksum: "x"}, nil
}

func newTestInventory() *fakeInventory {
	return &fakeInventory{
		user: User{Id: "1", Name: "ann"},
		projects: []Project{
			{Id: "10", Name: "Alpha"},
			{Id: "20", Name: "Beta"},
		},
		samples: map[string][]Sample{
			"10": {{Id: "100", Name: "A1", ProjectId: "10", ProjectName: "Alpha"}},
			"20": {
				{Id: "200", Name: "B1", ProjectId: "20", ProjectName: "Beta"},
				{Id: "201", Name: "B2", ProjectId: "20", ProjectName: "Beta"},
			},
		},
		files: map[string][]FileEntry{
			"100": {{Id: "f1", Name: "a1_R1.fastq.gz", Size: 10, SampleId: "100"}},
			"200": {
				{Id: "f2", Name: "b1_R1.fastq.gz", Size: 20, SampleId: "200"},
				{Id: "f3", Name: "b1_R2.fastq.gz", Size: 30, SampleId: "200"},
			},
		},
	}
}

func newTestAgent(cfg Config, inv Inventory, dl Downloader, diag Diagnostics) *Agent {
	a := NewAgent(cfg, inv, dl, diag, zerolog.Nop())
	a.availableBytes = func(string) (int64, error) { return 1 << 40, nil }
	return a
}

func fileIds(files []FileEntry) []string {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.Id
	}
	return ids
}

func TestSelectScopesSamplesToResolvedProjects(t *testing.T) {
	inv := newTestInventory()
	cfg := Config{Projects: Filter{Ids: []string{"20"}}}
	a := newTestAgent(cfg, inv, &fakeDownloader{}, &recordingDiagnostics{})

	sel, err := a.Select(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"20"}, inv.listedSamplesOf)
	require.Len(t, sel.Projects, 1)
	assert.Equal(t, "Beta", sel.Projects[0].Name)
	require.Len(t, sel.Samples, 2)
	assert.Equal(t, "B1", sel.Samples[0].Name)
	assert.Equal(t, "ann", sel.User.Name)
}

func TestSelectInvalidProjectIdSelectsNothing(t *testing.T) {
	inv := newTestInventory()
	diag := &recordingDiagnostics{}
	a := newTestAgent(Config{Projects: Filter{Ids: []string{"abc"}}}, inv, &fakeDownloader{}, diag)

	sel, err := a.Select(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sel.Projects)
	assert.Empty(t, sel.Samples)
	assert.Empty(t, inv.listedSamplesOf)
	assert.True(t, diag.contains("project ids are strictly numeric"))
}

func TestEnumerateFilesKeepsOrder(t *testing.T) {
	inv := newTestInventory()
	a := newTestAgent(Config{}, inv, &fakeDownloader{}, &recordingDiagnostics{})

	samples := []Sample{{Id: "200"}, {Id: "100"}, {Id: "201"}, {Id: "200"}}
	files, err := a.EnumerateFiles(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2", "f3", "f1", "f2", "f3"}, fileIds(files))
}

func TestRunNoFiles(t *testing.T) {
	inv := newTestInventory()
	dl := &fakeDownloader{}
	diag := &recordingDiagnostics{}
	cfg := Config{
		Samples:         Filter{Names: []string{"B2"}},
		OutputDirectory: t.TempDir(),
		RecreateTree:    true,
	}
	err := newTestAgent(cfg, inv, dl, diag).Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, dl.calls)
	assert.Equal(t, []string{"no files found to download."}, diag.at("error"))
}

func TestRunDryRun(t *testing.T) {
	inv := newTestInventory()
	dl := &fakeDownloader{}
	diag := &recordingDiagnostics{}
	outDir := filepath.Join(t.TempDir(), "not", "created")
	cfg := Config{
		DryRun:          true,
		OutputDirectory: outDir,
		RecreateTree:    true,
		Ledger:          true,
	}
	err := newTestAgent(cfg, inv, dl, diag).Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, dl.calls)
	assert.True(t, diag.contains("Found 3 files to download"))
	assert.True(t, diag.contains("a1_R1.fastq.gz"))
	assert.True(t, diag.contains("b1_R1.fastq.gz"))
	assert.True(t, diag.contains("b1_R2.fastq.gz"))
	assert.True(t, diag.contains("-> Dry run: not downloading any data."))
	assert.True(t, diag.contains("[3/3] Downloading file"))
	assert.NoDirExists(t, outDir)
}

func TestRunFlatTree(t *testing.T) {
	inv := newTestInventory()
	dl := &fakeDownloader{}
	outDir := t.TempDir()
	cfg := Config{OutputDirectory: outDir, RecreateTree: false}
	err := newTestAgent(cfg, inv, dl, &recordingDiagnostics{}).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, dl.calls, 3)
	for _, c := range dl.calls {
		assert.False(t, c.recreateTree)
		assert.Equal(t, outDir, c.outputDir)
	}
}

func TestRunDownloadsInOrderWithProgress(t *testing.T) {
	inv := newTestInventory()
	dl := &fakeDownloader{}
	diag := &recordingDiagnostics{}
	outDir := filepath.Join(t.TempDir(), "out")
	cfg := Config{OutputDirectory: outDir, RecreateTree: true, Ledger: true}
	err := newTestAgent(cfg, inv, dl, diag).Run(context.Background())

	require.NoError(t, err)
	assert.DirExists(t, outDir)
	var got []FileEntry
	for _, c := range dl.calls {
		assert.True(t, c.recreateTree)
		got = append(got, c.file)
	}
	assert.Equal(t, []string{"f1", "f2", "f3"}, fileIds(got))
	assert.True(t, diag.contains(`[1/3] Downloading file "a1_R1.fastq.gz`))
	assert.True(t, diag.contains("Download completed"))

	ledger, err := OpenLedger(outDir)
	require.NoError(t, err)
	defer ledger.Close()
	entries, err := ledger.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRunTransferFailureStopsQueue(t *testing.T) {
	inv := newTestInventory()
	dl := &fakeDownloader{failOn: "f2"}
	cfg := Config{OutputDirectory: t.TempDir(), RecreateTree: true}
	err := newTestAgent(cfg, inv, dl, &recordingDiagnostics{}).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, dl.calls, 2)
}

func TestRunDefaultOutputDirectory(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	diag := &recordingDiagnostics{}
	cfg := Config{DryRun: true}
	err = newTestAgent(cfg, newTestInventory(), &fakeDownloader{}, diag).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, diag.contains("Output directory not specified; using current directory ("+wd+")"))
}

func TestRunDiskSpaceShortfallIsAWarning(t *testing.T) {
	dl := &fakeDownloader{}
	diag := &recordingDiagnostics{}
	a := newTestAgent(Config{OutputDirectory: t.TempDir()}, newTestInventory(), dl, diag)
	a.availableBytes = func(string) (int64, error) { return 5, nil }

	require.NoError(t, a.Run(context.Background()))
	assert.Len(t, dl.calls, 3)
	assert.True(t, diag.contains("Not enough disk space"))
}

func TestRunDryRunReportsDiskSpace(t *testing.T) {
	outDir := t.TempDir()
	dl := &fakeDownloader{}
	diag := &recordingDiagnostics{}
	a := newTestAgent(Config{DryRun: true, OutputDirectory: outDir}, newTestInventory(), dl, diag)
	a.availableBytes = func(string) (int64, error) { return 5, nil }

	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, dl.calls)
	assert.True(t, diag.contains("Not enough disk space"))
}

func TestRunDryRunSkipsDiskSpaceForMissingDirectory(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "absent")
	probed := false
	diag := &recordingDiagnostics{}
	a := newTestAgent(Config{DryRun: true, OutputDirectory: outDir}, newTestInventory(), &fakeDownloader{}, diag)
	a.availableBytes = func(string) (int64, error) { probed = true; return 5, nil }

	require.NoError(t, a.Run(context.Background()))
	assert.False(t, probed)
	assert.False(t, diag.contains("Not enough disk space"))
}
