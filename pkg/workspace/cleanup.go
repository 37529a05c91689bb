package workspace

import (
	"errors"
	"os"
	"sync"

	"github.com/jlzhang001/skyloop/pkg/telemetry"
)

// CleanupReport describes what teardown did.
type CleanupReport struct {
	// Retained is true when nothing was removed on request.
	Retained bool

	// Dir is the working area path.
	Dir string

	// SideArtifacts are the tracked files outside the working area.
	SideArtifacts []string

	// Removed lists what was deleted.
	Removed []string

	// Errors holds teardown failures. They are never returned to the
	// caller as the run's error.
	Errors []error
}

// Err joins the teardown failures.
func (r CleanupReport) Err() error {
	return errors.Join(r.Errors...)
}

// Coordinator tears down a run's transient state exactly once.
type Coordinator struct {
	ws     *Workspace
	retain bool
	logger *telemetry.Logger

	mu     sync.Mutex
	side   []string
	once   sync.Once
	report CleanupReport
}

// NewCoordinator returns a coordinator for ws. When retain is true cleanup
// only reports locations.
func NewCoordinator(ws *Workspace, retain bool, logger *telemetry.Logger) *Coordinator {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Coordinator{ws: ws, retain: retain, logger: logger.NewComponentLogger("cleanup")}
}

// Track registers side artifacts living outside the working area.
func (c *Coordinator) Track(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.side = append(c.side, paths...)
}

// Tracked returns a copy of the tracked side artifacts.
func (c *Coordinator) Tracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.side...)
}

// Retain reports whether the coordinator keeps files.
func (c *Coordinator) Retain() bool {
	return c.retain
}

// Cleanup removes the working area and tracked side artifacts unless
// retention was requested. Only the first call does anything; later calls
// return the same report.
func (c *Coordinator) Cleanup() CleanupReport {
	c.once.Do(func() {
		c.report = c.cleanup()
	})
	return c.report
}

func (c *Coordinator) cleanup() (report CleanupReport) {
	side := c.Tracked()
	report = CleanupReport{Retained: c.retain, SideArtifacts: side}
	if c.ws != nil {
		report.Dir = c.ws.Dir()
	}

	defer func() {
		if r := recover(); r != nil {
			report.Errors = append(report.Errors, errors.New("panic during cleanup"))
		}
		for _, err := range report.Errors {
			c.logger.WithError(err).Warn("Cleanup incomplete")
		}
	}()

	if c.retain {
		if report.Dir != "" {
			c.logger.Zerolog().Info().
				Str("workspace", report.Dir).
				Strs("side_artifacts", side).
				Msg("Retaining temporary files")
		}
		return report
	}

	if report.Dir != "" {
		if err := os.RemoveAll(report.Dir); err != nil {
			report.Errors = append(report.Errors, err)
		} else {
			report.Removed = append(report.Removed, report.Dir)
		}
	}

	for _, path := range side {
		err := os.Remove(path)
		switch {
		case err == nil:
			report.Removed = append(report.Removed, path)
		case errors.Is(err, os.ErrNotExist):
		default:
			report.Errors = append(report.Errors, err)
		}
	}

	c.logger.Zerolog().Debug().Strs("removed", report.Removed).Msg("Temporary files removed")
	return report
}
