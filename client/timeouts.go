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
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.6river.tech/dockv/errdefs"
)

// TimeoutConfig bounds how long each class of operation may run before it
// fails with a timeout.
type TimeoutConfig struct {
	// Connect bounds cluster setup, including waiting for the debug surface
	// to come up.
	Connect time.Duration
	// KV bounds key-value operations without a durability requirement.
	KV time.Duration
	// KVDurable bounds key-value mutations carrying a durability level.
	KVDurable time.Duration
	// Query bounds query service requests.
	Query time.Duration
	// Management bounds management surface requests.
	Management time.Duration
}

// builtinProfiles are always available to ApplyProfile. "default" suits
// deployments in the same datacenter as the cluster; "wan-development"
// loosens everything for working against a remote cluster.
var builtinProfiles = map[string]TimeoutConfig{
	"default": {
		Connect:    10 * time.Second,
		KV:         2500 * time.Millisecond,
		KVDurable:  10 * time.Second,
		Query:      75 * time.Second,
		Management: 75 * time.Second,
	},
	"wan-development": {
		Connect:    20 * time.Second,
		KV:         20 * time.Second,
		KVDurable:  20 * time.Second,
		Query:      2 * time.Minute,
		Management: 2 * time.Minute,
	},
}

// DefaultTimeouts returns the "default" profile.
func DefaultTimeouts() TimeoutConfig {
	return builtinProfiles["default"]
}

// ApplyProfile replaces c with the named built-in profile. Unknown names fail
// with ErrInvalidArgument.
func (c *TimeoutConfig) ApplyProfile(name string) error {
	profile, ok := builtinProfiles[name]
	if !ok {
		return fmt.Errorf("%w: unknown timeout profile %q", errdefs.ErrInvalidArgument, name)
	}
	*c = profile
	return nil
}

// withDefaults fills zero fields from the default profile so callers only
// have to spell out what they want to change.
func (c TimeoutConfig) withDefaults() TimeoutConfig {
	defaults := DefaultTimeouts()
	if c.Connect <= 0 {
		c.Connect = defaults.Connect
	}
	if c.KV <= 0 {
		c.KV = defaults.KV
	}
	if c.KVDurable <= 0 {
		c.KVDurable = defaults.KVDurable
	}
	if c.Query <= 0 {
		c.Query = defaults.Query
	}
	if c.Management <= 0 {
		c.Management = defaults.Management
	}
	return c
}

// timeoutConfigYAML is the wire shape of one profile entry, duration strings
// in time.ParseDuration syntax.
type timeoutConfigYAML struct {
	Connect    string `yaml:"connect"`
	KV         string `yaml:"kv"`
	KVDurable  string `yaml:"kv_durable"`
	Query      string `yaml:"query"`
	Management string `yaml:"management"`
}

// UnmarshalYAML parses duration strings like "2500ms" or "2m", leaving
// omitted fields at zero.
func (c *TimeoutConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw timeoutConfigYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"connect", raw.Connect, &c.Connect},
		{"kv", raw.KV, &c.KV},
		{"kv_durable", raw.KVDurable, &c.KVDurable},
		{"query", raw.Query, &c.Query},
		{"management", raw.Management, &c.Management},
	} {
		if f.src == "" {
			continue
		}
		d, err := time.ParseDuration(f.src)
		if err != nil {
			return errors.Wrapf(err, "invalid %s timeout", f.name)
		}
		if d < 0 {
			return errors.Errorf("%s timeout must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}

// LoadProfiles reads a YAML document mapping profile names to timeout sets
// and returns it merged over the built-in profiles. Loaded profiles override
// built-ins of the same name, and fields a profile omits inherit from the
// default profile.
func LoadProfiles(r io.Reader) (map[string]TimeoutConfig, error) {
	var loaded map[string]TimeoutConfig
	if err := yaml.NewDecoder(r).Decode(&loaded); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parsing timeout profiles")
	}
	profiles := make(map[string]TimeoutConfig, len(builtinProfiles)+len(loaded))
	for name, profile := range builtinProfiles {
		profiles[name] = profile
	}
	for name, profile := range loaded {
		profiles[name] = profile.withDefaults()
	}
	return profiles, nil
}
