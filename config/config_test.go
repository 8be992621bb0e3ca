/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadStratum(t *testing.T) {
	cfg := Default()
	cfg.Server.Stratum = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Stratum = 16
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownClockSource(t *testing.T) {
	cfg := Default()
	cfg.Clock.Source = "atomic"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresGpsConfigForGpsSource(t *testing.T) {
	cfg := Default()
	cfg.Clock.Source = "gps"
	cfg.Clock.GPS = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresSerialPortWhenGpsEnabled(t *testing.T) {
	cfg := Default()
	cfg.Clock.Source = "gps"
	cfg.Clock.GPS.SerialPort = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.Stratum = 3
	cfg.Security.IPWhitelist = []string{"10.0.0.0/8"}

	path := filepath.Join(t.TempDir(), "gpsntpd.toml")
	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), loaded.Server.Stratum)
	assert.Equal(t, []string{"10.0.0.0/8"}, loaded.Security.IPWhitelist)
}

func TestLoadFromFileRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpsntpd.toml")
	require.NoError(t, SaveToFile(Config{}, path))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}
