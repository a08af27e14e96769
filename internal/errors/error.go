package errors

import "errors"

var (
	ErrIllegalMove       = errors.New("illegal move in game record")
	ErrEmptyGame         = errors.New("game record contains no moves")
	ErrEngineNotStarted  = errors.New("engine session is not started")
	ErrEngineTimeout     = errors.New("engine evaluation timed out")
	ErrEngineCrashed     = errors.New("engine process exited unexpectedly")
	ErrEngineUnavailable = errors.New("engine unavailable after restart")
	ErrGameNotFound      = errors.New("game not found")
	ErrReportNotFound    = errors.New("report not found")
	ErrJobNotFound       = errors.New("analysis job not found")
	ErrInternal          = errors.New("internal error")
)
