package mapview

import (
	"context"
	"fmt"
)

type observers []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var out observers
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (all observers) VisibilityChanged(v Visibility) {
	for _, o := range all {
		o.VisibilityChanged(v)
	}
}

func (all observers) FocusFinished(r FocusReport) {
	for _, o := range all {
		o.FocusFinished(r)
	}
}

func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "visible":
		return Visible, nil
	case "hidden":
		return Hidden, nil
	}
	return Hidden, fmt.Errorf("unknown visibility %q", s)
}

// SetOutcome sets Err from an Outcome label.
func (r *FocusReport) SetOutcome(outcome string) error {
	switch outcome {
	case "opened":
		r.Err = nil
	case "timeout":
		r.Err = ErrFocusTimeout
	case "superseded":
		r.Err = ErrFocusSuperseded
	case "cancelled":
		r.Err = context.Canceled
	default:
		return fmt.Errorf("unknown focus outcome %q", outcome)
	}
	return nil
}
