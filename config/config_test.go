package config

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/casualjim/strix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
reentrant: true
default_stage: bulk
stage:
  io:
    topics: ["files/*", "net/*"]
    workers: 2
    queue: 16
  ui:
    topics: ["ui/*", "ui/clicks"]
`

func readString(t *testing.T, doc string) *Config {
	t.Helper()
	v := New()
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(doc)))
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func testBroker() *strix.Broker {
	return strix.NewBroker(strix.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestLoad(t *testing.T) {
	cfg := readString(t, sample)

	assert.True(t, cfg.Reentrant)
	assert.Equal(t, "bulk", cfg.DefaultStage)
	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, Stage{Topics: []string{"files/*", "net/*"}, Workers: 2, Queue: 16}, cfg.Stages["io"])
	assert.Equal(t, []string{"ui/*", "ui/clicks"}, cfg.Stages["ui"].Topics)
	assert.Zero(t, cfg.Stages["ui"].Workers)
}

func TestLoadDefaults(t *testing.T) {
	cfg := readString(t, "stage: {}\n")
	assert.False(t, cfg.Reentrant)
	assert.Equal(t, strix.DefaultStage, cfg.DefaultStage)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("STRIX_DEFAULT_STAGE", "from-env")
	t.Setenv("STRIX_REENTRANT", "true")

	cfg := readString(t, "default_stage: from-file\n")
	assert.Equal(t, "from-env", cfg.DefaultStage)
	assert.True(t, cfg.Reentrant)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		cfg  Config
		errs []string
	}{
		"valid": {
			cfg: Config{DefaultStage: "default", Stages: map[string]Stage{"io": {Topics: []string{"a/*"}, Workers: 1}}},
		},
		"missing default stage": {
			cfg:  Config{},
			errs: []string{"default_stage is required"},
		},
		"negative sizes": {
			cfg:  Config{DefaultStage: "d", Stages: map[string]Stage{"io": {Workers: -1, Queue: -1}}},
			errs: []string{"workers must not be negative", "queue must not be negative"},
		},
		"invalid pattern": {
			cfg:  Config{DefaultStage: "d", Stages: map[string]Stage{"io": {Topics: []string{"a//b"}}}},
			errs: []string{`invalid topic pattern "a//b"`},
		},
		"pattern on two stages": {
			cfg: Config{DefaultStage: "d", Stages: map[string]Stage{
				"a": {Topics: []string{"x/*"}},
				"b": {Topics: []string{"x/*"}},
			}},
			errs: []string{`topic pattern "x/*" is mapped to stages a and b`},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if len(tc.errs) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, msg := range tc.errs {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	b := testBroker()
	defer b.Close(ctx)

	cfg := readString(t, sample)
	require.NoError(t, cfg.Apply(ctx, b))

	assert.True(t, b.DefaultReentrant())
	assert.Equal(t, "io", b.StageFor("files/a.txt"))
	assert.Equal(t, "ui", b.StageFor("ui/clicks"))
	assert.Equal(t, "bulk", b.StageFor("other"))
	assert.Equal(t, []string{"io"}, b.OwnedStages())

	done := make(chan struct{})
	require.NoError(t, b.Register(ctx, "reader", strix.HandlerFunc(func(context.Context, *strix.Event) error {
		close(done)
		return nil
	}), strix.Topics("files/*")))
	_, err := b.PostTopic(ctx, "files/a.txt", nil)
	require.NoError(t, err)
	<-done

	t.Run("reapply drops pools no longer declared", func(t *testing.T) {
		next := readString(t, "default_stage: default\nstage:\n  io:\n    topics: [\"files/*\"]\n")
		require.NoError(t, next.Apply(ctx, b))
		assert.Empty(t, b.OwnedStages())
		assert.False(t, b.DefaultReentrant())
		assert.Equal(t, strix.DefaultStage, b.StageFor("ui/clicks"))

		_, err := b.PostTopic(ctx, "files/a.txt", nil)
		assert.ErrorIs(t, err, strix.ErrStageUnavailable)
	})

	t.Run("nil broker", func(t *testing.T) {
		assert.ErrorIs(t, cfg.Apply(ctx, nil), strix.ErrNotInitialized)
	})
}

func TestApplyKeepsRoutedTopicsAvailable(t *testing.T) {
	ctx := context.Background()
	b := testBroker()
	defer b.Close(ctx)
	require.NoError(t, b.Register(ctx, "reader", strix.HandlerFunc(func(context.Context, *strix.Event) error {
		return nil
	}), strix.Topics("files/*")))

	withPool := readString(t, "default_stage: default\nstage:\n  io:\n    topics: [\"files/*\"]\n    workers: 1\n")
	withoutPool := readString(t, "default_stage: default\nstage: {}\n")

	stop := make(chan struct{})
	failures := make(chan error, 1)
	go func() {
		defer close(failures)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := b.PostTopic(ctx, "files/a.txt", nil); err != nil {
				failures <- err
				return
			}
		}
	}()

	for range 20 {
		require.NoError(t, withPool.Apply(ctx, b))
		require.NoError(t, withoutPool.Apply(ctx, b))
	}
	require.NoError(t, withPool.Apply(ctx, b))
	close(stop)
	assert.NoError(t, <-failures)
	assert.Equal(t, "io", b.StageFor("files/a.txt"))
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "strix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_stage: first\n"), 0o600))

	v, err := ReadFile(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	b := testBroker()
	defer b.Close(ctx)
	require.NoError(t, cfg.Apply(ctx, b))
	assert.Equal(t, "first", b.StageFor("x"))

	Watch(ctx, v, b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, os.WriteFile(path, []byte("default_stage: second\n"), 0o600))

	require.Eventually(t, func() bool {
		return b.StageFor("x") == "second"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
