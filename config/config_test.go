package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{UnitCount: 2, Intensity: 0.25, MemoryTargetBytes: 256 * MiB, GraphicsIntensity: 10, DurationSeconds: 600}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(*Config){
		"negative units":     func(c *Config) { c.UnitCount = -1 },
		"intensity above 1":  func(c *Config) { c.Intensity = 1.01 },
		"negative intensity": func(c *Config) { c.Intensity = -0.1 },
		"negative memory":    func(c *Config) { c.MemoryTargetBytes = -1 },
		"graphics above 100": func(c *Config) { c.GraphicsIntensity = 101 },
		"zero duration":      func(c *Config) { c.DurationSeconds = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}

	t.Run("zero units and zero memory are allowed", func(t *testing.T) {
		c := Config{DurationSeconds: 1}
		assert.NoError(t, c.Validate())
	})
}

func TestValidateIntensity(t *testing.T) {
	assert.NoError(t, ValidateIntensity(0))
	assert.NoError(t, ValidateIntensity(1))
	assert.ErrorIs(t, ValidateIntensity(1.5), ErrInvalid)
}

func TestTuningGuard(t *testing.T) {
	tu := DefaultTuning()
	tu.MaxSafeIntensity = 0.8
	tu.MaxDuration = time.Minute

	c := validConfig()
	c.Intensity = 0.9
	guarded, notes := tu.Guard(c)

	assert.Equal(t, 0.8, guarded.Intensity)
	assert.Equal(t, 60, guarded.DurationSeconds)
	assert.Equal(t, []string{NoteIntensityCapped, NoteDurationCapped}, notes)

	_, notes = DefaultTuning().Guard(validConfig())
	assert.Empty(t, notes)
}

func TestTuningValidate(t *testing.T) {
	require.NoError(t, DefaultTuning().Validate())

	tu := DefaultTuning()
	tu.StallThreshold = 0
	assert.ErrorIs(t, tu.Validate(), ErrInvalid)

	tu = DefaultTuning()
	tu.MaxSafeIntensity = 1.5
	assert.ErrorIs(t, tu.Validate(), ErrInvalid)
}

func TestBuiltinPresetsAreValid(t *testing.T) {
	for _, p := range BuiltinPresets() {
		assert.NoError(t, p.Config.Validate(), p.Name)
	}

	p, err := Lookup(BuiltinPresets(), "warm")
	require.NoError(t, err)
	assert.Equal(t, validConfig(), p.Config)

	_, err = Lookup(BuiltinPresets(), "nope")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(BuiltinPresets())
	names := func() []string {
		var out []string
		for _, p := range c.List() {
			out = append(out, p.Name)
		}
		return out
	}
	assert.Equal(t, []string{"hot", "idle-check", "max", "warm"}, names())

	c.Replace(Merge(BuiltinPresets(), []Preset{{Name: "custom", Config: validConfig()}}))
	p, err := c.Lookup("custom")
	require.NoError(t, err)
	assert.Equal(t, validConfig(), p.Config)

	list := c.List()
	list[0].Name = "mutated"
	assert.NotContains(t, names(), "mutated")

	_, err = c.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

const sampleFile = `
presets:
  - name: custom
    description: from disk
    config:
      units: 3
      intensity: 0.5
      memory_bytes: 1048576
      graphics: 20
      duration_seconds: 30
  - name: warm
    config:
      units: 1
      intensity: 0.1
      duration_seconds: 10
tuning:
  stall_threshold: 6s
  chart_capacity: 60
`

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(sampleFile))
	require.NoError(t, err)

	require.Len(t, f.Presets, 2)
	assert.Equal(t, "custom", f.Presets[0].Name)
	assert.Equal(t, 3, f.Presets[0].Config.UnitCount)
	assert.Equal(t, 6*time.Second, f.Tuning.StallThreshold)
	assert.Equal(t, 60, f.Tuning.ChartCapacity)
	// untouched fields keep their defaults
	assert.Equal(t, DefaultTuning().AggregateInterval, f.Tuning.AggregateInterval)

	merged := Merge(BuiltinPresets(), f.Presets)
	warm, err := Lookup(merged, "warm")
	require.NoError(t, err)
	assert.Equal(t, 1, warm.Config.UnitCount)
	assert.Len(t, merged, len(BuiltinPresets())+1)
}

func TestParseFileRejectsInvalidPreset(t *testing.T) {
	_, err := ParseFile([]byte(`
presets:
  - name: bad
    config:
      units: 1
      intensity: 2
      duration_seconds: 10
`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = ParseFile([]byte(`
presets:
  - name: twice
    config: {units: 1, intensity: 0.1, duration_seconds: 1}
  - name: twice
    config: {units: 1, intensity: 0.1, duration_seconds: 1}
`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		loaded []File
	)
	started := make(chan struct{})
	go func() {
		close(started)
		_ = Watch(ctx, path, nil, func(f File, err error) {
			if err != nil {
				return
			}
			mu.Lock()
			loaded = append(loaded, f)
			mu.Unlock()
		})
	}()
	<-started
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loaded) > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchRetryWaitsForDirectory(t *testing.T) {
	watchRetryInitial, watchRetryMax = 10*time.Millisecond, 50*time.Millisecond
	t.Cleanup(func() { watchRetryInitial, watchRetryMax = 500*time.Millisecond, 30*time.Second })

	dir := filepath.Join(t.TempDir(), "later")
	path := filepath.Join(dir, "presets.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		loaded int
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchRetry(ctx, path, nil, func(f File, err error) {
			if err == nil {
				mu.Lock()
				loaded++
				mu.Unlock()
			}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return loaded > 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchRetry did not return after cancel")
	}
}
