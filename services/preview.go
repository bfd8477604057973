package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"arxiv-fulltext-service/internal/config"
)

// OwnerHeader carries the owning user id on preview responses.
const OwnerHeader = "ARXIV-OWNER"

// PreviewService retrieves PDF previews for in-progress submissions. A
// preview is addressed by {source_id}/{checksum}.
type PreviewService struct {
	endpoint *url.URL
	client   *http.Client
}

// NewPreviewService builds the adapter from configuration.
func NewPreviewService(cfg *config.Config) (*PreviewService, error) {
	endpoint, err := url.Parse(cfg.PreviewEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid preview endpoint: %v", err)
	}
	return &PreviewService{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.PreviewVerify},
			},
		},
	}, nil
}

func (p *PreviewService) do(ctx context.Context, method, path, token string) (*http.Response, error) {
	target := p.endpoint.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return resp, nil
}

// Exists determines whether a preview exists, returning the content checksum
// when it does.
func (p *PreviewService) Exists(ctx context.Context, identifier, token string) (bool, string, error) {
	resp, err := p.do(ctx, http.MethodHead, identifier+"/content", token)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, resp.Header.Get("ETag"), nil
	case http.StatusNotFound:
		return false, "", nil
	}
	return false, "", fmt.Errorf("%w: unexpected status %d", ErrIO, resp.StatusCode)
}

// GetOwner returns the owner of a submission preview.
func (p *PreviewService) GetOwner(ctx context.Context, identifier, token string) (string, error) {
	resp, err := p.do(ctx, http.MethodHead, identifier, token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: no preview for %s", ErrDoesNotExist, identifier)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrIO, resp.StatusCode)
	}
	return resp.Header.Get(OwnerHeader), nil
}

// Retrieve fetches the preview content stream, along with the owner and the
// ETag content checksum from the response headers.
func (p *PreviewService) Retrieve(ctx context.Context, identifier, token string) (io.ReadCloser, string, string, error) {
	resp, err := p.do(ctx, http.MethodGet, identifier+"/content", token)
	if err != nil {
		return nil, "", "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, "", "", fmt.Errorf("%w: no preview for %s", ErrDoesNotExist, identifier)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", "", fmt.Errorf("%w: unexpected status %d", ErrIO, resp.StatusCode)
	}
	return resp.Body, resp.Header.Get(OwnerHeader), resp.Header.Get("ETag"), nil
}

// IsAvailable checks connectivity to the preview service.
func (p *PreviewService) IsAvailable(ctx context.Context) bool {
	resp, err := p.do(ctx, http.MethodHead, "status", "")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
