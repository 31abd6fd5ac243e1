package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"usage", errs.Usagef("unknown service %q", "nope"), 2},
		{"wrapped usage", fmt.Errorf("create: %w", errs.Usagef("bad")), 2},
		{"update", errs.Updatef("no image"), 1},
		{"aborted", errs.ErrAborted, 1},
		{"lock", errs.ErrLockHeld, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestPromptConfirm(t *testing.T) {
	var out bytes.Buffer
	confirm := promptConfirm(strings.NewReader("y\nno\nYES\n\nyes"), &out)

	for _, want := range []bool{true, false, true, false, true, false} {
		ok, err := confirm("Continue? ")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.Equal(t, 6, strings.Count(out.String(), "Continue? "))
}

func TestPromptConfirmReadError(t *testing.T) {
	confirm := promptConfirm(errReader{}, &bytes.Buffer{})
	_, err := confirm("Continue? ")
	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("tty gone") }
