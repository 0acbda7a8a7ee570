package controlplane

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aponysus/settle/httpx"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/retry"
)

// maxDocumentSize bounds a fetched presets document.
const maxDocumentSize = 1 << 20

var errBadProfile = errors.New("settle: invalid profile name")

func checkProfile(profile string) error {
	if profile == "" || strings.ContainsAny(profile, `/\`) || profile == "." || profile == ".." {
		return fmt.Errorf("%w: %q", errBadProfile, profile)
	}
	return nil
}

// FileSource reads <Dir>/<profile>.yaml.
type FileSource struct {
	Dir string
}

func (s FileSource) Fetch(_ context.Context, profile string) ([]byte, error) {
	if err := checkProfile(profile); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, profile+".yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrPresetsNotFound, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresetsFetchFailed, err)
	}
	return data, nil
}

// HTTPSource GETs <BaseURL>/<profile>.yaml, retrying transient failures.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client

	// Executor defaults to httpx.NewExecutor().
	Executor *retry.Executor
	// Retry defaults to the defaultRetry preset.
	Retry *policy.RetrySpec
}

func (s HTTPSource) Fetch(ctx context.Context, profile string) ([]byte, error) {
	if err := checkProfile(profile); err != nil {
		return nil, err
	}
	u := strings.TrimRight(s.BaseURL, "/") + "/" + url.PathEscape(profile) + ".yaml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresetsFetchFailed, err)
	}

	exec := s.Executor
	if exec == nil {
		exec = httpx.NewExecutor()
	}
	spec, err := s.retrySpec()
	if err != nil {
		return nil, err
	}

	resp, _, err := httpx.DoHTTP(ctx, exec, "controlplane.fetch", spec, s.Client, req)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusGone) {
			return nil, fmt.Errorf("%w: %q", ErrPresetsNotFound, profile)
		}
		return nil, fmt.Errorf("%w: %w", ErrPresetsFetchFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresetsFetchFailed, err)
	}
	return data, nil
}

func (s HTTPSource) retrySpec() (policy.RetrySpec, error) {
	if s.Retry != nil {
		return *s.Retry, nil
	}
	return policy.DefaultPresets().Retry(policy.PresetDefaultRetry)
}
