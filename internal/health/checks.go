package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/MrWong99/hark/internal/resilience"
)

// CaptureState is the part of a capture loop a readiness probe looks at.
type CaptureState interface {
	IsCapturing() bool
	Err() error
}

// CaptureChecker reports ready while the capture loop is running. A loop that
// stopped on an error reports that error.
func CaptureChecker(c CaptureState) Checker {
	return Checker{
		Name: "capture",
		Check: func(context.Context) error {
			if c.IsCapturing() {
				return nil
			}
			if err := c.Err(); err != nil {
				return fmt.Errorf("capture stopped: %w", err)
			}
			return errors.New("capture not running")
		},
	}
}

// BreakerChecker reports ready while at least one backend of a fallback
// group accepts calls. states is typically a [resilience.FallbackGroup]'s
// States method.
func BreakerChecker(name string, states func() map[string]resilience.State) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			var open []string
			all := states()
			for backend, s := range all {
				if s != resilience.StateOpen {
					return nil
				}
				open = append(open, backend)
			}
			if len(all) == 0 {
				return nil
			}
			slices.Sort(open)
			return fmt.Errorf("all circuits open: %s", strings.Join(open, ", "))
		},
	}
}

// HTTPChecker reports ready when url answers at all with a status below 500.
// Local model servers often have no health route, so any page will do.
func HTTPChecker(name, url string, client *http.Client) Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("%s unreachable: %w", url, err)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("%s answered %s", url, resp.Status)
			}
			return nil
		},
	}
}

// BinaryChecker reports ready when bin resolves to an executable, either on
// PATH or as a path.
func BinaryChecker(name, bin string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if _, err := exec.LookPath(bin); err != nil {
				return fmt.Errorf("%s not found: %w", bin, err)
			}
			return nil
		},
	}
}

// FileChecker reports ready when path is a non-empty regular file, such as a
// downloaded model.
func FileChecker(name, path string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			info, err := os.Stat(path)
			switch {
			case err != nil:
				return err
			case !info.Mode().IsRegular():
				return fmt.Errorf("%s is not a regular file", path)
			case info.Size() == 0:
				return fmt.Errorf("%s is empty", path)
			}
			return nil
		},
	}
}
