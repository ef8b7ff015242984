package logging

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("writes fields to the output", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Options{Level: "debug", Output: &buf})

		Component(log, "smoother").WithField("label", "A").Info("updated")

		assert.Contains(t, buf.String(), "smoother")
		assert.Contains(t, buf.String(), "updated")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		log := New(Options{Level: "chatty", Output: &bytes.Buffer{}})
		assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	})

	t.Run("tees into a log file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "signsync.log")
		var buf bytes.Buffer
		log := New(Options{Level: "info", File: file, Output: &buf})

		log.Info("hello")

		require.FileExists(t, file)
	})
}

func TestComponent_NilLogger(t *testing.T) {
	entry := Component(nil, "x")
	assert.NotNil(t, entry)
}
