package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Cleanup(func() {
		_ = Init(Options{Level: "info"})
	})

	t.Run("Namespace", func(t *testing.T) {
		buf := new(bytes.Buffer)
		err := Init(Options{Level: "info", Output: buf, JSON: true})
		require.NoError(t, err)

		WithNamespace("vfsafero").WithField("path", "/a/b").Info("created")

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "vfsafero", line["nspace"])
		assert.Equal(t, "/a/b", line["path"])
		assert.Equal(t, "created", line["msg"])
		assert.Equal(t, "info", line["level"])
	})

	t.Run("Level", func(t *testing.T) {
		buf := new(bytes.Buffer)
		err := Init(Options{Level: "warning", Output: buf})
		require.NoError(t, err)

		log := WithNamespace("test")
		log.Debug("hidden")
		log.Info("hidden too")
		log.Warnf("visible %d", 42)

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "visible 42")
		assert.False(t, log.IsDebug())
		assert.Equal(t, logrus.WarnLevel, logrus.StandardLogger().Level)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		err := Init(Options{Level: "verbose"})
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("Truncate", func(t *testing.T) {
		buf := new(bytes.Buffer)
		err := Init(Options{Level: "debug", Output: buf, JSON: true})
		require.NoError(t, err)

		WithNamespace("test").Debug(strings.Repeat("x", 3*maxLineWidth))

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		msg := line["msg"].(string)
		assert.Len(t, msg, maxLineWidth)
		assert.True(t, strings.HasSuffix(msg, " [TRUNCATED]"))
	})
}
