//go:build !cgo

package sim

import (
	"context"
	"errors"
)

func RunWindow(_ context.Context, _ *Panel, _ int) error {
	return errors.New("sim: window mode requires cgo (build/run with CGO_ENABLED=1)")
}
