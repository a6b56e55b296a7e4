package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

type fakeUpdater struct {
	found bool
	err   error
}

func (f fakeUpdater) DetectLatest(context.Context, selfupdate.Repository) (*selfupdate.Release, bool, error) {
	return nil, f.found, f.err
}

func (f fakeUpdater) UpdateTo(context.Context, *selfupdate.Release, string) error {
	return errors.New("unexpected update")
}

func withUpdater(t *testing.T, u updater) {
	original := newUpdater
	t.Cleanup(func() { newUpdater = original })
	newUpdater = func() (updater, error) { return u, nil }
}

func selfUpdateCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	c := newSelfUpdateCmd()
	c.SetOut(&buf)
	c.SetContext(context.Background())
	return c, &buf
}

func TestRunSelfUpdate_DevelopmentVersions(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()

	for _, v := range []string{"", "dev"} {
		rootCmd.Version = v
		err := runSelfUpdate(nil, nil)
		assert.ErrorContains(t, err, "cannot self-update a development version")
	}
}

func TestRunSelfUpdate_NoRelease(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "1.0.0"

	withUpdater(t, fakeUpdater{found: false})
	c, buf := selfUpdateCommand()

	err := runSelfUpdate(c, nil)
	assert.ErrorContains(t, err, "could not be found")
	assert.Contains(t, buf.String(), "Current version: 1.0.0")
}

func TestRunSelfUpdate_DetectFails(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "1.0.0"

	withUpdater(t, fakeUpdater{err: errors.New("rate limited")})
	c, _ := selfUpdateCommand()

	assert.ErrorContains(t, runSelfUpdate(c, nil), "rate limited")
}

func TestSelfUpdateCommandHelp(t *testing.T) {
	c := newSelfUpdateCmd()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetArgs([]string{"--help"})

	assert.NoError(t, c.Execute())
	assert.Contains(t, buf.String(), "Checks for the latest release")
}
