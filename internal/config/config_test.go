package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbolanos/AutoHeadFixFB/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "headfix.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsMatchRigProtocol(t *testing.T) {
	c := config.FromEnv()

	assert.Equal(t, "GPIO24", c.Pins.Restraint)
	assert.Equal(t, "GPIO17", c.Pins.Reward)
	assert.Equal(t, 9600, c.BaudRate)
	assert.Equal(t, 6, c.HeadFixRewards)
	assert.Equal(t, 100, c.MaxEntranceRewards)
	assert.Equal(t, 2*time.Second, c.EntranceRewardDelay)
	assert.Equal(t, 5*time.Second, c.InterRewardInterval)
	assert.Equal(t, config.StimulusNone, c.StimulusMode)
	assert.True(t, c.VerifyChecksum)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("HEADFIX_CAGE_ID", "cage7")
	t.Setenv("HEADFIX_REWARD_ON", "50ms")
	t.Setenv("HEADFIX_HEADFIX_REWARDS", "4")
	t.Setenv("HEADFIX_VERIFY_CHECKSUM", "false")
	t.Setenv("HEADFIX_CYCLIC_PINS", "left=GPIO5, right=GPIO6, bogus")
	t.Setenv("HEADFIX_CYCLIC_ORDER", "left,right,left")
	t.Setenv("HEADFIX_MAX_ENTRANCE_REWARDS", "-3")
	t.Setenv("HEADFIX_SKEDADDLE", "soon")

	c := config.FromEnv()

	assert.Equal(t, "cage7", c.CageID)
	assert.Equal(t, 50*time.Millisecond, c.RewardOn)
	assert.Equal(t, 4, c.HeadFixRewards)
	assert.False(t, c.VerifyChecksum)
	assert.Equal(t, map[string]string{"left": "GPIO5", "right": "GPIO6"}, c.Pins.Cyclic)
	assert.Equal(t, []string{"left", "right", "left"}, c.CyclicOrder)
	assert.Equal(t, 100, c.MaxEntranceRewards, "negative falls back to default")
	assert.Equal(t, 3*time.Second, c.Skedaddle, "unparseable falls back to default")
}

func TestLoadFileOverlaysOnlyDefinedKeys(t *testing.T) {
	t.Setenv("HEADFIX_CAGE_ID", "from-env")
	t.Setenv("HEADFIX_SERIAL_PORT", "/dev/ttyUSB0")

	path := writeFile(t, `
cage_id = "from-file"
reward_on = "120ms"
headfix_rewards = 8
stimulus_mode = "Cyclic"
cyclic_order = ["left", "right"]

[pins]
reward = "GPIO27"

[pins.cyclic]
left = "GPIO5"
right = "GPIO6"
`)

	c, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", c.CageID)
	assert.Equal(t, "/dev/ttyUSB0", c.SerialPort, "env value kept when file is silent")
	assert.Equal(t, 120*time.Millisecond, c.RewardOn)
	assert.Equal(t, 8, c.HeadFixRewards)
	assert.Equal(t, "GPIO27", c.Pins.Reward)
	assert.Equal(t, "GPIO24", c.Pins.Restraint)
	assert.Equal(t, config.StimulusCyclic, c.StimulusMode)
	assert.Equal(t, "GPIO6", c.Pins.Cyclic["right"])
	require.NoError(t, c.Validate())
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, `cage_idd = "typo"`)
	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		c := config.Default()
		c.CageID = "cage1"
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		ok     bool
	}{
		{name: "defaults with cage", mutate: func(*config.Config) {}, ok: true},
		{name: "missing cage", mutate: func(c *config.Config) { c.CageID = " " }},
		{name: "zero rest", mutate: func(c *config.Config) { c.RestInterval = 0 }},
		{name: "reward longer than interval", mutate: func(c *config.Config) { c.RewardOn = 6 * time.Second }},
		{name: "phase inside pulse", mutate: func(c *config.Config) { c.StimulusPhase = 50 * time.Millisecond }},
		{name: "phase past interval", mutate: func(c *config.Config) { c.StimulusPhase = 6 * time.Second }},
		{name: "phase in range", mutate: func(c *config.Config) { c.StimulusPhase = time.Second }, ok: true},
		{name: "negative rewards", mutate: func(c *config.Config) { c.HeadFixRewards = -1 }},
		{name: "unknown stimulus", mutate: func(c *config.Config) { c.StimulusMode = "strobe" }},
		{name: "pulse stimulus", mutate: func(c *config.Config) { c.StimulusMode = config.StimulusPulse }, ok: true},
		{name: "cyclic without order", mutate: func(c *config.Config) { c.StimulusMode = config.StimulusCyclic }},
		{name: "cyclic unknown line", mutate: func(c *config.Config) {
			c.StimulusMode = config.StimulusCyclic
			c.CyclicOrder = []string{"left"}
		}},
		{name: "cyclic", mutate: func(c *config.Config) {
			c.StimulusMode = config.StimulusCyclic
			c.CyclicOrder = []string{"left"}
			c.Pins.Cyclic = map[string]string{"left": "GPIO5"}
		}, ok: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}
