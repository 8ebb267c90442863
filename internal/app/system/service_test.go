package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name     string
	startErr error
	log      *[]string
}

func (r recorder) Name() string { return r.name }

func (r recorder) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	*r.log = append(*r.log, "start "+r.name)
	return nil
}

func (r recorder) Stop(context.Context) error {
	*r.log = append(*r.log, "stop "+r.name)
	return nil
}

func TestManager_Order(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recorder{name: "a", log: &log}))
	require.NoError(t, m.Register(recorder{name: "b", log: &log}))
	assert.Error(t, m.Register(recorder{name: "a", log: &log}))

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Register(recorder{name: "c", log: &log}))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestManager_StartFailureUnwinds(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recorder{name: "a", log: &log}))
	require.NoError(t, m.Register(recorder{name: "b", log: &log, startErr: errors.New("boom")}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "stop a"}, log)
}
