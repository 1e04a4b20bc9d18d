package services

import (
	"fmt"
	"time"

	"cityflow/neurotraff/config"
)

// OutOfWindowError is returned when provider data is requested outside the
// permitted UTC hours.
type OutOfWindowError struct {
	Hour  int
	Start int
	End   int
}

func (e *OutOfWindowError) Error() string {
	return fmt.Sprintf("outside allowed hours for fetching traffic data: hour %d not in [%d,%d) UTC", e.Hour, e.Start, e.End)
}

// AccessWindow admits instants whose UTC hour h satisfies Start <= h < End.
type AccessWindow struct {
	Start int
	End   int
}

func NewAccessWindow(cfg config.WindowConfig) AccessWindow {
	return AccessWindow{Start: cfg.StartHour, End: cfg.EndHour}
}

func (w AccessWindow) Check(now time.Time) error {
	h := now.UTC().Hour()
	if h < w.Start || h >= w.End {
		return &OutOfWindowError{Hour: h, Start: w.Start, End: w.End}
	}
	return nil
}
