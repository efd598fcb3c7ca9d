package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestRun_RejectsBadConfiguration(t *testing.T) {
	t.Chdir(t.TempDir())

	err := run([]string{"-i", "0s"})
	assert.ErrorIs(t, err, internalerrors.ErrInvalidConfig)

	err = run([]string{"-h"})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestRun_Disabled(t *testing.T) {
	t.Chdir(t.TempDir())

	assert.NoError(t, run([]string{"-enabled=false", "-l", "error"}))
}
