package chatreplay

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipharvest/pkg/command"
	"clipharvest/pkg/errors"
)

// fakeTool writes payload to the --output path and returns stderr/err
func fakeTool(t *testing.T, payload, stderr string, err error) (command.Runner, *[]string) {
	t.Helper()
	var seen []string
	return command.RunnerFunc(func(ctx context.Context, name string, args ...string) (command.Result, error) {
		seen = append([]string{name}, args...)
		require.Len(t, args, 3)
		require.Equal(t, "--output", args[1])
		if payload != "" {
			require.NoError(t, os.WriteFile(args[2], []byte(payload), 0644))
		}
		return command.Result{Stderr: []byte(stderr)}, err
	}), &seen
}

func TestExecSourceOK(t *testing.T) {
	runner, seen := fakeTool(t, `[{"message":"hi"}]`, "", nil)
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(t.TempDir()))

	res := src.Fetch(context.Background(), "https://clips.twitch.tv/ClipA")
	require.Equal(t, StatusOK, res.Status, res.String())
	assert.JSONEq(t, `[{"message":"hi"}]`, string(res.Payload))
	assert.Equal(t, "chat_downloader", (*seen)[0])
	assert.Equal(t, "https://clips.twitch.tv/ClipA", (*seen)[1])
	assert.NoError(t, res.AsError("op"))
}

func TestExecSourceNoReplay(t *testing.T) {
	runner, _ := fakeTool(t, "", "chat_downloader.errors.NoChatReplay: Unable to find chat replay", errors.New(errors.KindDownloadFailure, "chat_downloader", "exit 1"))
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(t.TempDir()))

	res := src.Fetch(context.Background(), "https://clips.twitch.tv/ClipA")
	assert.Equal(t, StatusNoReplay, res.Status)
	assert.True(t, errors.Is(res.AsError("op"), errors.KindNoReplay))
}

func TestExecSourceFailure(t *testing.T) {
	runErr := errors.New(errors.KindDownloadFailure, "chat_downloader", "connection reset")
	runner, _ := fakeTool(t, "", "Traceback: connection reset", runErr)
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(t.TempDir()))

	res := src.Fetch(context.Background(), "https://clips.twitch.tv/ClipA")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, runErr, res.Err)
	assert.Equal(t, runErr, res.AsError("op"))
}

func TestExecSourceEmptyOutput(t *testing.T) {
	runner, _ := fakeTool(t, "", "", nil)
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(t.TempDir()))

	res := src.Fetch(context.Background(), "https://clips.twitch.tv/ClipA")
	assert.Equal(t, StatusError, res.Status)
	assert.True(t, errors.Is(res.Err, errors.KindDownloadFailure))
}

func TestExecSourceCleansScratch(t *testing.T) {
	dir := t.TempDir()
	runner, _ := fakeTool(t, `[]`, "", nil)
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(dir))

	src.Fetch(context.Background(), "https://clips.twitch.tv/ClipA")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCustomMarkers(t *testing.T) {
	runner, _ := fakeTool(t, "", "replay disabled by broadcaster", errors.New(errors.KindDownloadFailure, "x", "exit 2"))
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(t.TempDir()), WithNoReplayMarkers("replay disabled"))

	assert.Equal(t, StatusNoReplay, src.Fetch(context.Background(), "u").Status)
}

func TestExecSourceKeepsTranscriptMentioningNoReplay(t *testing.T) {
	payload := `[{"message":"why is there no chat replay on the vod"}]`
	runner := command.RunnerFunc(func(ctx context.Context, name string, args ...string) (command.Result, error) {
		require.NoError(t, os.WriteFile(args[2], []byte(payload), 0644))
		return command.Result{Stdout: []byte("why is there no chat replay on the vod\n")}, nil
	})
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(t.TempDir()))

	res := src.Fetch(context.Background(), "https://clips.twitch.tv/ClipA")
	require.Equal(t, StatusOK, res.Status, res.String())
	assert.JSONEq(t, payload, string(res.Payload))
}

func TestExecSourceIgnoresMarkersOnStdout(t *testing.T) {
	runErr := errors.New(errors.KindDownloadFailure, "chat_downloader", "exit 1")
	runner := command.RunnerFunc(func(ctx context.Context, name string, args ...string) (command.Result, error) {
		return command.Result{Stdout: []byte("no chat replay"), Stderr: []byte("Traceback: timeout")}, runErr
	})
	src := NewExecSource(runner, "chat_downloader", WithScratchDir(t.TempDir()))

	res := src.Fetch(context.Background(), "https://clips.twitch.tv/ClipA")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, runErr, res.Err)
}
