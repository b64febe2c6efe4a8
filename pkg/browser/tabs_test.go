package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureTabs struct {
	count    int
	openErr  error
	closeErr error
	opened   int
	closed   []int
}

func (f *fixtureTabs) Count() int { return f.count }

func (f *fixtureTabs) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.count++
	f.opened++
	return nil
}

func (f *fixtureTabs) Close(idx int) error {
	f.closed = append(f.closed, idx)
	if f.closeErr != nil {
		return f.closeErr
	}
	f.count--
	return nil
}

func TestNormalizeTabs(t *testing.T) {
	cases := []struct {
		start      int
		wantOpened int
		wantClosed []int
	}{
		{start: 0, wantOpened: 2},
		{start: 1, wantOpened: 1},
		{start: 2},
		{start: 5, wantClosed: []int{4, 3, 2}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("start_%d", tc.start), func(t *testing.T) {
			tabs := &fixtureTabs{count: tc.start}
			require.NoError(t, normalizeTabs(tabs))

			assert.Equal(t, 2, tabs.count)
			assert.Equal(t, tc.wantOpened, tabs.opened)
			assert.Equal(t, tc.wantClosed, tabs.closed)
		})
	}
}

func TestNormalizeTabsOpenFailure(t *testing.T) {
	tabs := &fixtureTabs{openErr: errors.New("page open refused")}
	assert.Error(t, normalizeTabs(tabs))
}

func TestNormalizeTabsToleratesStuckClose(t *testing.T) {
	// A tab that survives its close must not loop the sweep forever; each
	// extra index is tried exactly once.
	tabs := &fixtureTabs{count: 4, closeErr: errors.New("close refused")}
	require.NoError(t, normalizeTabs(tabs))
	assert.Equal(t, []int{3, 2}, tabs.closed)
}
