package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"arxiv-fulltext-service/internal/config"
)

// fakeDockerClient stands in for the docker daemon. It mimics the extractor
// container contract: on create it writes output (when configured) next to
// the input PDF, on wait it reports the configured exit code.
type fakeDockerClient struct {
	docker.APIClient
	workdir  string
	output   *string
	exitCode int64
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, cfg *container.Config,
	hostCfg *container.HostConfig, netCfg *network.NetworkingConfig,
	platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	if f.output != nil && len(cfg.Cmd) == 1 {
		stub := strings.TrimSuffix(strings.TrimPrefix(cfg.Cmd[0], "/pdfs/"), ".pdf")
		out := filepath.Join(f.workdir, stub+".txt")
		if err := os.WriteFile(out, []byte(*f.output), 0o644); err != nil {
			return container.CreateResponse{}, err
		}
	}
	return container.CreateResponse{ID: "fake-container"}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, id string, options container.StartOptions) error {
	return nil
}

func (f *fakeDockerClient) ContainerWait(ctx context.Context, id string,
	condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	waitCh := make(chan container.WaitResponse, 1)
	waitCh <- container.WaitResponse{StatusCode: f.exitCode}
	return waitCh, make(chan error, 1)
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error {
	return nil
}

func fakeExtractor(t *testing.T, fake *fakeDockerClient) (*Extractor, string) {
	t.Helper()
	dir := t.TempDir()
	fake.workdir = dir
	pdf := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return &Extractor{
		client:   fake,
		image:    "arxiv/fulltext",
		version:  "0.3",
		workdir:  dir,
		mountdir: dir,
	}, pdf
}

func strPtr(s string) *string { return &s }

func TestExtractorImageReference(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.ExtractorImage = "arxiv/fulltext"
	cfg.ExtractorVersion = "0.3"
	cfg.Workdir = t.TempDir()

	extractor, err := NewExtractor(cfg)
	if err != nil {
		t.Fatalf("could not build extractor: %v", err)
	}
	if extractor.Image() != "arxiv/fulltext:0.3" {
		t.Fatalf("image = %q", extractor.Image())
	}
	if extractor.Version() != "0.3" {
		t.Fatalf("version = %q", extractor.Version())
	}
}

func TestNewExtractorCreatesWorkdir(t *testing.T) {
	cfg := &config.Config{
		ExtractorImage:   "arxiv/fulltext",
		ExtractorVersion: "0.3",
		Workdir:          filepath.Join(t.TempDir(), "nested", "workdir"),
	}
	if _, err := NewExtractor(cfg); err != nil {
		t.Fatalf("could not build extractor: %v", err)
	}
	if _, err := os.Stat(cfg.Workdir); err != nil {
		t.Fatalf("workdir not created: %v", err)
	}
}

func TestDoExtraction(t *testing.T) {
	fake := &fakeDockerClient{output: strPtr("Extracted plain text.")}
	extractor, pdf := fakeExtractor(t, fake)

	got, err := extractor.DoExtraction(context.Background(), pdf)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if got != "Extracted plain text." {
		t.Fatalf("content = %q", got)
	}

	// Work files are cleaned up on the way out.
	entries, err := os.ReadDir(extractor.workdir)
	if err != nil {
		t.Fatalf("read workdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("workdir not cleaned: %v", entries)
	}
}

func TestDoExtractionEmptyOutputIsNoContent(t *testing.T) {
	fake := &fakeDockerClient{output: strPtr("")}
	extractor, pdf := fakeExtractor(t, fake)

	if _, err := extractor.DoExtraction(context.Background(), pdf); !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want no-content on a zero-byte output file", err)
	}
}

func TestDoExtractionMissingOutputIsNoContent(t *testing.T) {
	fake := &fakeDockerClient{}
	extractor, pdf := fakeExtractor(t, fake)

	if _, err := extractor.DoExtraction(context.Background(), pdf); !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want no-content when nothing was written", err)
	}
}

func TestDoExtractionNonZeroExit(t *testing.T) {
	fake := &fakeDockerClient{output: strPtr("ignored"), exitCode: 1}
	extractor, pdf := fakeExtractor(t, fake)

	if _, err := extractor.DoExtraction(context.Background(), pdf); !errors.Is(err, ErrContainerError) {
		t.Fatalf("err = %v, want container error on exit status 1", err)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(raw) != "%PDF-1.4" {
		t.Fatalf("copied content = %q", raw)
	}
}
