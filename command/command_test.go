package command

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/marketfeed/config"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected Command
		wantErr  error
	}{
		{
			name:     "addsub single",
			line:     "addsub ethusdt@trade",
			expected: Command{Kind: KindSubscribe, Topics: []string{"ethusdt@trade"}},
		},
		{
			name:     "addsub multiple",
			line:     "addsub btcusdt@trade btcusdt@depth5",
			expected: Command{Kind: KindSubscribe, Topics: []string{"btcusdt@trade", "btcusdt@depth5"}},
		},
		{
			name:     "delsub",
			line:     "delsub ethusdt@trade",
			expected: Command{Kind: KindUnsubscribe, Topics: []string{"ethusdt@trade"}},
		},
		{
			name:     "verb case insensitive",
			line:     "ADDSUB ETHUSDT@TRADE",
			expected: Command{Kind: KindSubscribe, Topics: []string{"ETHUSDT@TRADE"}},
		},
		{
			name:     "extra whitespace",
			line:     "  list   ",
			expected: Command{Kind: KindListLocal},
		},
		{
			name:     "listserver",
			line:     "listserver",
			expected: Command{Kind: KindListServer},
		},
		{
			name:     "help",
			line:     "help",
			expected: Command{Kind: KindHelp},
		},
		{
			name:     "quit",
			line:     "quit",
			expected: Command{Kind: KindQuit},
		},
		{
			name:    "empty line",
			line:    "   ",
			wantErr: ErrEmptyLine,
		},
		{
			name:    "addsub without topics",
			line:    "addsub",
			wantErr: ErrMissingTopics,
		},
		{
			name:    "delsub without topics",
			line:    "delsub",
			wantErr: ErrMissingTopics,
		},
		{
			name:    "unknown verb",
			line:    "subscribe ethusdt@trade",
			wantErr: ErrUnknownCommand,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmd, err := ParseLine(test.line)
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, cmd)
		})
	}
}

func newTestIngress(t *testing.T) *Ingress {
	t.Helper()
	ingress, err := NewIngress(config.CommandQueueConfig{
		Size:     10,
		Overflow: config.OverflowBlock,
	}, nil, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ingress.Close() })
	return ingress
}

func receiveCommand(t *testing.T, ch <-chan Command) Command {
	t.Helper()
	select {
	case cmd, ok := <-ch:
		require.True(t, ok, "command channel closed")
		return cmd
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
		return Command{}
	}
}

func TestIngressDeliversInOrder(t *testing.T) {
	ingress := newTestIngress(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingress.Start(ctx)

	require.NoError(t, ingress.Submit(Command{Kind: KindSubscribe, Topics: []string{"a@trade"}}))
	require.NoError(t, ingress.Submit(Command{Kind: KindListLocal}))
	require.NoError(t, ingress.Submit(Command{Kind: KindQuit}))

	assert.Equal(t, KindSubscribe, receiveCommand(t, ingress.Commands()).Kind)
	assert.Equal(t, KindListLocal, receiveCommand(t, ingress.Commands()).Kind)
	assert.Equal(t, KindQuit, receiveCommand(t, ingress.Commands()).Kind)
}

func TestIngressRejectsBadPolicy(t *testing.T) {
	_, err := NewIngress(config.CommandQueueConfig{Size: 10, Overflow: "spill"}, nil, nil)
	require.Error(t, err)
}

func TestIngressSubmitAfterClose(t *testing.T) {
	ingress := newTestIngress(t)
	require.NoError(t, ingress.Close())
	require.Error(t, ingress.Submit(Command{Kind: KindListLocal}))
}

func TestReaderSubmitsAndQuitsOnEOF(t *testing.T) {
	ingress := newTestIngress(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingress.Start(ctx)

	input := strings.NewReader("addsub ethusdt@trade\nbogus\nlist\n")
	var output bytes.Buffer
	reader := NewReader(input, &output, ingress, slog.Default())

	done := make(chan struct{})
	go func() {
		reader.Run(ctx)
		close(done)
	}()

	assert.Equal(t, KindSubscribe, receiveCommand(t, ingress.Commands()).Kind)
	assert.Equal(t, KindListLocal, receiveCommand(t, ingress.Commands()).Kind)
	// EOF produces an implicit quit
	assert.Equal(t, KindQuit, receiveCommand(t, ingress.Commands()).Kind)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not exit on EOF")
	}

	assert.Contains(t, output.String(), "unknown command")
}

func TestReaderStopsAfterQuit(t *testing.T) {
	ingress := newTestIngress(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingress.Start(ctx)

	input := strings.NewReader("quit\naddsub never@trade\n")
	reader := NewReader(input, &bytes.Buffer{}, ingress, slog.Default())

	done := make(chan struct{})
	go func() {
		reader.Run(ctx)
		close(done)
	}()

	assert.Equal(t, KindQuit, receiveCommand(t, ingress.Commands()).Kind)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not stop after quit")
	}

	// nothing further was queued
	select {
	case cmd := <-ingress.Commands():
		t.Fatalf("unexpected command after quit: %v", cmd.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReaderPrintsHelpLocally(t *testing.T) {
	ingress := newTestIngress(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingress.Start(ctx)

	input := strings.NewReader("help\n")
	var output bytes.Buffer
	reader := NewReader(input, &output, ingress, slog.Default())

	done := make(chan struct{})
	go func() {
		reader.Run(ctx)
		close(done)
	}()

	// help is handled by the reader itself; only the EOF quit reaches the queue
	assert.Equal(t, KindQuit, receiveCommand(t, ingress.Commands()).Kind)
	<-done
	assert.Contains(t, output.String(), "addsub <topic>")
}
