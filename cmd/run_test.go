package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parasim/parasim/internal/config"
)

func TestRunCmd_FlagsRegisteredWithConfigDefaults(t *testing.T) {
	d := config.DefaultRunParams()

	seedFlag := runCmd.Flags().Lookup("seed")
	assert.NotNil(t, seedFlag, "seed flag must be registered")
	assert.Equal(t, "42", seedFlag.DefValue)

	policyFlag := runCmd.Flags().Lookup("policy")
	assert.NotNil(t, policyFlag, "policy flag must be registered")
	assert.Equal(t, d.SchedulerPolicy, policyFlag.DefValue)

	workersFlag := runCmd.Flags().Lookup("workers")
	assert.NotNil(t, workersFlag, "workers flag must be registered")
	assert.Equal(t, "0", workersFlag.DefValue, "default worker count forces serial-global")
}

func TestRootCmd_HasRunSubcommand(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "run" {
			found = true
		}
	}
	assert.True(t, found, "rootCmd must register runCmd")
}

func TestHeartbeatDuration_DefaultsToFiveSecondsForNonPositive(t *testing.T) {
	assert.Equal(t, 5*time.Second, heartbeatDuration(0))
	assert.Equal(t, 5*time.Second, heartbeatDuration(-3))
	assert.Equal(t, 10*time.Second, heartbeatDuration(10))
}
