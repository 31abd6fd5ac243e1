package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway/fake"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlatform() *fake.Platform {
	p := fake.New()
	p.AddServer(&types.Server{UUID: "srv-hn", Hostname: "headnode", Headnode: true, Setup: true, Status: "running", BootPlatform: "20260101T000000Z"})
	p.AddServer(&types.Server{UUID: "srv-cn1", Hostname: "cn1", Setup: true, Status: "running", BootPlatform: "20260101T000000Z"})
	p.AddServer(&types.Server{UUID: "srv-cn2", Hostname: "cn2", Setup: true, Status: "running"})
	p.AddServer(&types.Server{UUID: "srv-new", Hostname: "new", Setup: false})
	p.AddPlatform("20260101T000000Z", &types.Platform{})
	p.AddPlatform("20260301T000000Z", &types.Platform{Latest: true})
	return p
}

// flaky fails the first n SetBootParams calls per server
type flaky struct {
	*fake.Platform
	mu    sync.Mutex
	n     int
	calls map[string]int
}

func (f *flaky) SetBootParams(ctx context.Context, id string, params types.BootParams) error {
	f.mu.Lock()
	f.calls[id]++
	c := f.calls[id]
	f.mu.Unlock()
	if c <= f.n {
		return fmt.Errorf("cnapi: 503 (attempt %d)", c)
	}
	return f.Platform.SetBootParams(ctx, id, params)
}

func TestResolve(t *testing.T) {
	p := newPlatform()
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"20260101T000000Z", "20260101T000000Z", false},
		{Latest, "20260301T000000Z", false},
		{"19990101T000000Z", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(context.Background(), p.Gateway(), tt.name)
			if tt.wantErr {
				assert.True(t, errs.IsUsage(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLatestIsDeterministic(t *testing.T) {
	tests := []struct {
		name  string
		plats map[string]bool
		want  string
	}{
		{"two flagged", map[string]bool{"20250101T000000Z": true, "20260101T000000Z": false, "20260301T000000Z": true}, "20260301T000000Z"},
		{"older flagged", map[string]bool{"20250101T000000Z": true, "20260301T000000Z": false}, "20250101T000000Z"},
		{"none flagged", map[string]bool{"20250101T000000Z": false, "20260301T000000Z": false}, "20260301T000000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fake.New()
			for v, latest := range tt.plats {
				p.AddPlatform(v, &types.Platform{Latest: latest})
			}
			// map iteration differs run to run; the answer must not
			for i := 0; i < 20; i++ {
				got, err := Resolve(context.Background(), p.Gateway(), Latest)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}

	_, err := Resolve(context.Background(), fake.New().Gateway(), Latest)
	var ue *errs.UpdateError
	assert.True(t, errors.As(err, &ue))
}

func TestAssign(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   []string
	}{
		{"all set-up servers", Target{All: true}, []string{"srv-hn", "srv-cn1", "srv-cn2"}},
		{"by hostname and uuid", Target{Servers: []string{"cn1", "srv-cn2"}}, []string{"srv-cn1", "srv-cn2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform()
			gw := p.Gateway()

			servers, err := Assign(context.Background(), gw, Latest, tt.target)
			require.NoError(t, err)
			var ids []string
			for _, s := range servers {
				ids = append(ids, s.UUID)
				bp, err := gw.Inventory.GetBootParams(context.Background(), s.UUID)
				require.NoError(t, err)
				assert.Equal(t, "20260301T000000Z", bp.Platform)
			}
			assert.Equal(t, tt.want, ids)

			p.Reset()
			_, err = Assign(context.Background(), gw, Latest, tt.target)
			require.NoError(t, err)
			assert.Empty(t, p.Calls("SetBootParams"), "already assigned")
		})
	}
}

func TestAssignRejectsBadTargets(t *testing.T) {
	tests := []struct {
		name   string
		target Target
	}{
		{"neither", Target{}},
		{"both", Target{All: true, Servers: []string{"cn1"}}},
		{"not set up", Target{Servers: []string{"new"}}},
		{"unknown", Target{Servers: []string{"nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform()
			_, err := Assign(context.Background(), p.Gateway(), Latest, tt.target)
			assert.True(t, errs.IsUsage(err), "%v", err)
			assert.Empty(t, p.Calls("SetBootParams"))
		})
	}
}

func TestAssignRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{"recovers on last retry", 3, 4, false},
		{"gives up after retries", 10, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform()
			f := &flaky{Platform: p, n: tt.failures, calls: map[string]int{}}
			gw := p.Gateway()
			gw.Inventory = f

			_, err := Assign(context.Background(), gw, Latest, Target{Servers: []string{"cn1", "cn2"}})
			assert.Equal(t, tt.wantCalls, f.calls["srv-cn1"])
			assert.Equal(t, tt.wantCalls, f.calls["srv-cn2"])
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var multi *errs.MultiError
			require.True(t, errors.As(err, &multi), "%v", err)
			assert.Len(t, multi.Errs, 2)
			var ce *errs.SDCClientError
			assert.True(t, errors.As(multi.Errs[0], &ce))
		})
	}
}

func TestAssignKeepsKernelArgs(t *testing.T) {
	p := newPlatform()
	gw := p.Gateway()
	require.NoError(t, p.SetBootParams(context.Background(), "srv-cn1", types.BootParams{
		Platform:   "20260101T000000Z",
		KernelArgs: map[string]string{"rabbitmq": "guest:guest:10.0.0.5:5672"},
	}))

	_, err := Assign(context.Background(), gw, "20260301T000000Z", Target{Servers: []string{"cn1"}})
	require.NoError(t, err)
	bp, err := gw.Inventory.GetBootParams(context.Background(), "srv-cn1")
	require.NoError(t, err)
	assert.Equal(t, "guest:guest:10.0.0.5:5672", bp.KernelArgs["rabbitmq"])
}

func TestSetDefault(t *testing.T) {
	p := newPlatform()
	gw := p.Gateway()

	require.NoError(t, SetDefault(context.Background(), gw, Latest))
	bp, err := gw.Inventory.GetBootParams(context.Background(), DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, "20260301T000000Z", bp.Platform)

	p.FailOn("SetBootParams", errors.New("boom"))
	err = SetDefault(context.Background(), gw, "20260101T000000Z")
	var ce *errs.SDCClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "cnapi", ce.Service)
	assert.Len(t, p.Calls("SetBootParams"), 1+4)
}
