package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name      string
	startErr  error
	starts    *[]string
	stops     *[]string
}

func (f fakeService) Name() string { return f.name }

func (f fakeService) Start(context.Context) error {
	*f.starts = append(*f.starts, f.name)
	return f.startErr
}

func (f fakeService) Stop(context.Context) error {
	*f.stops = append(*f.stops, f.name)
	return nil
}

func TestManagerStartsInOrderAndStopsInReverse(t *testing.T) {
	var starts, stops []string
	m := NewManager()
	require.NoError(t, m.Register(fakeService{name: "a", starts: &starts, stops: &stops}))
	require.NoError(t, m.Register(fakeService{name: "b", starts: &starts, stops: &stops}))
	require.NoError(t, m.Register(fakeService{name: "c", starts: &starts, stops: &stops}))

	require.NoError(t, m.Start(context.Background()))
	require.Equal(t, []string{"a", "b", "c"}, starts)

	require.NoError(t, m.Stop(context.Background()))
	require.Equal(t, []string{"c", "b", "a"}, stops)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var starts, stops []string
	m := NewManager()
	require.NoError(t, m.Register(fakeService{name: "a", starts: &starts, stops: &stops}))
	require.NoError(t, m.Register(fakeService{name: "b", startErr: errors.New("boom"), starts: &starts, stops: &stops}))
	require.NoError(t, m.Register(fakeService{name: "c", starts: &starts, stops: &stops}))

	err := m.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"a", "b"}, starts)
	require.Equal(t, []string{"a"}, stops)
}

func TestManagerRejectsRegistrationAfterStart(t *testing.T) {
	var starts, stops []string
	m := NewManager()
	require.NoError(t, m.Start(context.Background()))
	err := m.Register(fakeService{name: "late", starts: &starts, stops: &stops})
	require.Error(t, err)
}
