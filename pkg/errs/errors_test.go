package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")

	assert.NoError(t, Collect(nil))
	assert.NoError(t, Collect([]error{nil, nil}))
	assert.Same(t, a, Collect([]error{nil, a}))

	err := Collect([]error{a, nil, b})
	var me *MultiError
	require.True(t, errors.As(err, &me))
	assert.Len(t, me.Errs, 2)
	assert.True(t, errors.Is(err, a))
	assert.True(t, errors.Is(err, b))
	assert.Contains(t, err.Error(), "2 errors")
}

func TestClientTagging(t *testing.T) {
	base := errors.New("connection refused")
	err := Client("cnapi", base)

	var ce *SDCClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "cnapi", ce.Service)
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "cnapi: connection refused", err.Error())

	// already tagged errors keep their original service
	wrapped := fmt.Errorf("list servers: %w", err)
	assert.Same(t, wrapped, Client("sapi", wrapped))

	assert.NoError(t, Client("sapi", nil))
}

func TestIsUsage(t *testing.T) {
	assert.True(t, IsUsage(Usagef("unknown service %q", "nope")))
	assert.True(t, IsUsage(fmt.Errorf("parse: %w", Usagef("bad"))))
	assert.False(t, IsUsage(Updatef("no image found")))
	assert.False(t, IsUsage(Client("sapi", errors.New("boom"))))
}

func TestUpdateErrorHint(t *testing.T) {
	err := &UpdateError{Msg: "image import failed", Hint: "run fleetadm post-setup common-external-nics"}
	assert.Equal(t, "image import failed (run fleetadm post-setup common-external-nics)", err.Error())

	cause := Client("imgapi", errors.New("connection refused"))
	wrapped := &UpdateError{Msg: "image import failed", Err: cause}
	assert.Equal(t, "image import failed: imgapi: connection refused", wrapped.Error())

	var ce *SDCClientError
	require.ErrorAs(t, wrapped, &ce)
	assert.Equal(t, "imgapi", ce.Service)
}

func TestTimeoutError(t *testing.T) {
	last := errors.New("sync_state is async")
	err := &TimeoutError{What: "manatee sync", Attempts: 60, Last: last}
	assert.Contains(t, err.Error(), "manatee sync")
	assert.Contains(t, err.Error(), "60 attempts")
	assert.True(t, errors.Is(err, last))
}
