package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	docker "github.com/docker/docker/client"
	"github.com/google/uuid"

	"arxiv-fulltext-service/internal/config"
	"arxiv-fulltext-service/internal/logger"
)

var (
	// ErrContainerError indicates the sandbox could not be launched or
	// exited abnormally.
	ErrContainerError = errors.New("extractor container failed")
	// ErrNoContent indicates the extractor produced no output file, or an
	// empty one.
	ErrNoContent = errors.New("extractor produced no content")
)

// Extractor runs the extractor image in an isolated container. The worker
// writes PDFs into workdir; mountdir is the same volume as seen by the
// docker daemon, and is bind-mounted into the container at /pdfs. The
// extractor writes its output alongside the input PDF.
type Extractor struct {
	client   docker.APIClient
	image    string
	version  string
	workdir  string
	mountdir string
}

// NewExtractor builds the sandbox integration from configuration.
func NewExtractor(cfg *config.Config) (*Extractor, error) {
	opts := []docker.Opt{docker.FromEnv, docker.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, docker.WithHost(cfg.DockerHost))
	}
	client, err := docker.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainerError, err)
	}
	if err := os.MkdirAll(cfg.Workdir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create workdir %s: %v", cfg.Workdir, err)
	}
	return &Extractor{
		client:   client,
		image:    cfg.ExtractorImage,
		version:  cfg.ExtractorVersion,
		workdir:  cfg.Workdir,
		mountdir: cfg.Mountdir,
	}, nil
}

// Image returns the fully qualified extractor image reference.
func (e *Extractor) Image() string {
	return fmt.Sprintf("%s:%s", e.image, e.version)
}

// Version returns the extractor version tag.
func (e *Extractor) Version() string {
	return e.version
}

// IsAvailable verifies that the docker daemon is reachable.
func (e *Extractor) IsAvailable(ctx context.Context) bool {
	if _, err := e.client.Ping(ctx); err != nil {
		logger.Error("docker daemon unreachable", "error", err)
		return false
	}
	return true
}

// DoExtraction runs the extractor against the PDF at pdfPath and returns the
// extracted plain text. The PDF is copied into the shared volume under a
// unique stub name so that concurrent workers never collide; the copy and
// all extractor outputs are removed on every exit path.
func (e *Extractor) DoExtraction(ctx context.Context, pdfPath string) (string, error) {
	start := time.Now()
	stub := uuid.NewString()
	name := stub + ".pdf"
	workPDF := filepath.Join(e.workdir, name)
	outPath := filepath.Join(e.workdir, stub+".txt")

	if err := copyFile(pdfPath, workPDF); err != nil {
		return "", fmt.Errorf("%w: %v", ErrContainerError, err)
	}
	defer func() {
		os.Remove(workPDF)
		os.Remove(outPath)
		os.Remove(filepath.Join(e.workdir, stub+".pdf2txt"))
	}()

	if err := e.run(ctx, name); err != nil {
		return "", err
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: expected output at %s", ErrNoContent, outPath)
	}
	content, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	logger.Info("finished extraction", "pdf", pdfPath,
		"chars", len(content), "duration", time.Since(start))
	return string(content), nil
}

// run pulls the extractor image and executes it against /pdfs/{name}.
func (e *Extractor) run(ctx context.Context, name string) error {
	ref := e.Image()

	pull, err := e.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pull %s: %v", ErrContainerError, ref, err)
	}
	io.Copy(io.Discard, pull)
	pull.Close()

	created, err := e.client.ContainerCreate(ctx,
		&container.Config{
			Image: ref,
			Cmd:   []string{"/pdfs/" + name},
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: e.mountdir,
				Target: "/pdfs",
			}},
		}, nil, nil, "")
	if err != nil {
		return fmt.Errorf("%w: create: %v", ErrContainerError, err)
	}
	defer e.client.ContainerRemove(context.WithoutCancel(ctx), created.ID,
		container.RemoveOptions{Force: true})

	if err := e.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start: %v", ErrContainerError, err)
	}

	waitCh, errCh := e.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		if status.StatusCode != 0 {
			return fmt.Errorf("%w: exited with status %d", ErrContainerError, status.StatusCode)
		}
	case err := <-errCh:
		return fmt.Errorf("%w: wait: %v", ErrContainerError, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
