// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package client

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.6river.tech/dockv/errdefs"
)

func TestTimeoutProfiles(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		cfg := DefaultTimeouts()
		assert.Equal(t, 10*time.Second, cfg.Connect)
		assert.Equal(t, 2500*time.Millisecond, cfg.KV)
		assert.Equal(t, 10*time.Second, cfg.KVDurable)
		assert.Equal(t, 75*time.Second, cfg.Query)
		assert.Equal(t, 75*time.Second, cfg.Management)
	})

	t.Run("wan-development", func(t *testing.T) {
		var cfg TimeoutConfig
		require.NoError(t, cfg.ApplyProfile("wan-development"))
		assert.Equal(t, 20*time.Second, cfg.KV)
		assert.Equal(t, 2*time.Minute, cfg.Query)
	})

	t.Run("unknown profile", func(t *testing.T) {
		var cfg TimeoutConfig
		require.ErrorIs(t, cfg.ApplyProfile("lan-party"), errdefs.ErrInvalidArgument)
	})

	t.Run("zero fields inherit defaults", func(t *testing.T) {
		cfg := TimeoutConfig{KV: 100 * time.Millisecond}.withDefaults()
		assert.Equal(t, 100*time.Millisecond, cfg.KV)
		assert.Equal(t, 10*time.Second, cfg.Connect)
		assert.Equal(t, 75*time.Second, cfg.Query)
	})
}

func TestLoadProfiles(t *testing.T) {
	t.Run("loaded profiles merge over the built-ins", func(t *testing.T) {
		doc := `
pos-terminal:
  kv: 100ms
  query: 30s
default:
  kv: 1s
`
		profiles, err := LoadProfiles(strings.NewReader(doc))
		require.NoError(t, err)

		pos, ok := profiles["pos-terminal"]
		require.True(t, ok)
		assert.Equal(t, 100*time.Millisecond, pos.KV)
		assert.Equal(t, 30*time.Second, pos.Query)
		assert.Equal(t, 10*time.Second, pos.Connect, "omitted fields inherit the default profile")

		assert.Equal(t, time.Second, profiles["default"].KV, "built-ins can be overridden")
		assert.Contains(t, profiles, "wan-development", "untouched built-ins survive")
	})

	t.Run("empty input yields the built-ins", func(t *testing.T) {
		profiles, err := LoadProfiles(strings.NewReader(""))
		require.NoError(t, err)
		assert.Contains(t, profiles, "default")
		assert.Contains(t, profiles, "wan-development")
	})

	t.Run("bad duration text", func(t *testing.T) {
		_, err := LoadProfiles(strings.NewReader("fast:\n  kv: quickly\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid kv timeout")
	})

	t.Run("negative durations", func(t *testing.T) {
		_, err := LoadProfiles(strings.NewReader("fast:\n  kv: -5s\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not be negative")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadProfiles(strings.NewReader("\t not yaml"))
		require.Error(t, err)
	})
}
