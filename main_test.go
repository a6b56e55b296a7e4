package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"launchpad/cmd"
)

func TestVersionDefault(t *testing.T) {
	assert.Equal(t, "dev", version)
}

func TestSetVersion(t *testing.T) {
	original := cmd.GetVersion()
	t.Cleanup(func() { cmd.SetVersion(original) })

	cmd.SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", cmd.GetVersion())
}
