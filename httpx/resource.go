package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/condition"
	"github.com/aponysus/settle/handle"
)

// Resource is a handle to a server-side resource addressed by URL.
type Resource struct {
	Key string
	URL string
}

// NewResource returns a Resource with a random identity.
func NewResource(url string) *Resource {
	return &Resource{Key: uuid.NewString(), URL: url}
}

func (r *Resource) ID() string          { return r.Key }
func (r *Resource) Description() string { return "resource " + r.URL }

// ErrNotResource is returned when a handle is not a *Resource.
var ErrNotResource = errors.New("settle: handle is not an HTTP resource")

func asResource(h handle.Handle) (*Resource, error) {
	r, ok := h.(*Resource)
	if !ok || r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotResource, handle.Describe(h))
	}
	return r, nil
}

// ETagSource reports the ETag of a resource as its generation, so a
// replaced resource is detected by a staleness tracker.
type ETagSource struct {
	Client *http.Client
}

var _ handle.GenerationSource = ETagSource{}

// CurrentGeneration issues a HEAD request for the resource. A response
// without an ETag yields handle.Unknown.
func (s ETagSource) CurrentGeneration(ctx context.Context, h handle.Handle) (handle.Generation, error) {
	r, err := asResource(h)
	if err != nil {
		return handle.Unknown, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.URL, nil)
	if err != nil {
		return handle.Unknown, err
	}
	resp, err := send(ctx, client(s.Client), req)
	if err != nil {
		return handle.Unknown, err
	}
	resp.Body.Close()
	return handle.Generation(resp.Header.Get("ETag")), nil
}

// ResponseCheck inspects a 2xx response. It must not close the body.
type ResponseCheck func(resp *http.Response) (bool, error)

// ResponseOption configures a ResponseCondition.
type ResponseOption func(*responseConfig)

type responseConfig struct {
	classifier classify.Classifier
}

// WithResponseClassifier sets the classifier for failed requests. The
// default is Classifier.
func WithResponseClassifier(c classify.Classifier) ResponseOption {
	return func(cfg *responseConfig) {
		if c != nil {
			cfg.classifier = c
		}
	}
}

// ResponseCondition returns a condition that GETs the resource and is
// Satisfied once check accepts the response. The result value is the status
// code.
//
// Failed requests are classified (by default 404 and 410 invalidate the
// handle, retryable statuses leave the condition pending, and everything
// else is fatal). An error from check is fatal.
func ResponseCondition(name string, c *http.Client, check ResponseCheck, opts ...ResponseOption) condition.Condition {
	cfg := responseConfig{classifier: Classifier}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return condition.New(name, func(ctx context.Context, h handle.Handle) condition.Result {
		r, err := asResource(h)
		if err != nil {
			return condition.Fatal(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
		if err != nil {
			return condition.Fatal(err)
		}
		resp, err := send(ctx, client(c), req)
		if err != nil {
			return condition.FromError(err, cfg.classifier)
		}
		defer func() {
			_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
			resp.Body.Close()
		}()

		if check == nil {
			return condition.Satisfied(resp.StatusCode)
		}
		ok, err := check(resp)
		switch {
		case err != nil:
			return condition.Fatal(err)
		case ok:
			return condition.Satisfied(resp.StatusCode)
		default:
			return condition.Pending()
		}
	})
}

// HeaderEquals accepts responses whose header key equals want.
func HeaderEquals(key, want string) ResponseCheck {
	return func(resp *http.Response) (bool, error) {
		return resp.Header.Get(key) == want, nil
	}
}

func client(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
