// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mode_test

import (
	"os"
	"testing"

	"github.com/bitmark-inc/logger"
	"github.com/stretchr/testify/assert"

	"github.com/metalayer-inc/metad/mode"
)

func setup(t *testing.T) {
	removeFiles()
	os.Mkdir("testing", 0700)

	logging := logger.Configuration{
		Directory: "testing",
		File:      "testing.log",
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}

	err := logger.Initialise(logging)
	if nil != err {
		t.Fatalf("logger setup failed: %s", err)
	}

	err = mode.Initialise()
	if nil != err {
		t.Fatalf("mode initialise failed: %s", err)
	}
}

func teardown(t *testing.T) {
	mode.Finalise()
	logger.Finalise()
	removeFiles()
}

func removeFiles() {
	os.RemoveAll("testing")
}

func TestStartsInReparse(t *testing.T) {
	setup(t)
	defer teardown(t)

	assert.True(t, mode.Is(mode.Reparse), "expected initial mode Reparse")
	assert.True(t, mode.IsNot(mode.Normal), "unexpected Normal mode")
	assert.Equal(t, "Reparse", mode.String(), "wrong mode string")
}

func TestSetAndQuery(t *testing.T) {
	setup(t)
	defer teardown(t)

	mode.Set(mode.Normal)
	assert.True(t, mode.Is(mode.Normal), "expected Normal after set")
	assert.Equal(t, "Normal", mode.String(), "wrong mode string")

	mode.Set(mode.Stopped)
	assert.True(t, mode.Is(mode.Stopped), "expected Stopped after set")

	// out of range values are ignored
	mode.Set(mode.Mode(99))
	assert.True(t, mode.Is(mode.Stopped), "invalid set must not change mode")
}
