package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	infraerrors "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/errors"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
)

// Action names an operator command.
type Action string

const (
	ActionExecute  Action = "execute"
	ActionCancel   Action = "cancel"
	ActionToggle   Action = "toggle"
	ActionSchedule Action = "schedule"
)

// Category groups command failures by what the operator can do about them.
type Category string

const (
	CategoryNotConfigured Category = "not_configured"
	CategoryPermission    Category = "permission"
	CategoryUnavailable   Category = "unavailable"
	CategoryFailed        Category = "failed"
	CategoryPrecondition  Category = "precondition"
	CategoryInFlight      Category = "in_flight"
)

var (
	// ErrInFlight is returned for a command already running for the same target.
	ErrInFlight = errors.New("command already in flight")
	// ErrSourceInactive refuses execution of a disabled source.
	ErrSourceInactive = errors.New("source is inactive")
	// ErrAlreadyRunning refuses execution of a source with a live job.
	ErrAlreadyRunning = errors.New("source already has a running job")
	// ErrUnknownSource is returned for names the registry does not know.
	ErrUnknownSource = registry.ErrUnknownSource
	// ErrNotAccepted refuses cancelling a job the backend has not assigned yet.
	ErrNotAccepted = errors.New("job not yet accepted by the backend")
	// ErrInvalidSchedule rejects a malformed cron expression.
	ErrInvalidSchedule = errors.New("invalid schedule expression")
	// ErrDiscarded is returned when a result arrives after the monitor was torn down.
	ErrDiscarded = errors.New("command result discarded: monitor stopped")
)

var categoryMessages = map[Category]string{
	CategoryNotConfigured: "not configured on backend",
	CategoryPermission:    "not authorized for this action",
	CategoryUnavailable:   "backend unavailable, retry later",
	CategoryFailed:        "command failed",
	CategoryInFlight:      "already in progress",
}

// CommandError is a failed operator command.
type CommandError struct {
	Action   Action
	Target   string
	Category Category
	Message  string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Action, e.Target, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// CategoryOf returns the category of a CommandError in err's chain.
func CategoryOf(err error) (Category, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Category, true
	}
	return "", false
}

func refuse(action Action, target string, err error) *CommandError {
	return &CommandError{
		Action:   action,
		Target:   target,
		Category: CategoryPrecondition,
		Message:  err.Error(),
		Err:      err,
	}
}

func inFlight(action Action, target string) *CommandError {
	return &CommandError{
		Action:   action,
		Target:   target,
		Category: CategoryInFlight,
		Message:  categoryMessages[CategoryInFlight],
		Err:      ErrInFlight,
	}
}

// classify maps a backend failure onto a category.
func classify(action Action, target string, err error) *CommandError {
	ce := &CommandError{Action: action, Target: target, Err: err}

	code, hasStatus := scraper.StatusCode(err)
	switch {
	case hasStatus && (code == http.StatusNotFound || code == http.StatusMethodNotAllowed):
		ce.Category = CategoryNotConfigured
	case hasStatus && (code == http.StatusUnauthorized || code == http.StatusForbidden):
		ce.Category = CategoryPermission
	case hasStatus && code >= http.StatusInternalServerError:
		ce.Category = CategoryUnavailable
	case hasStatus:
		ce.Category = CategoryFailed
	case errors.Is(err, context.DeadlineExceeded), scraper.IsTransport(err):
		ce.Category = CategoryUnavailable
	default:
		ce.Category = CategoryFailed
	}

	ce.Message = categoryMessages[ce.Category]
	if ce.Category == CategoryFailed {
		var httpErr *infraerrors.HTTPError
		if errors.As(err, &httpErr) && httpErr.Message != "" {
			ce.Message = httpErr.Message
		}
	}
	return ce
}
