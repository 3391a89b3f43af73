package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"version"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), version)
}

func TestRun_Algorithms(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"algorithms"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "scaffold")
	assert.Contains(t, out.String(), "pfedme")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"train"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), `unknown command "train"`)
}

func TestRun_Simulation(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{
		"run", "-algorithm", "fedprox", "-rounds", "2", "-clients", "3", "-json", "-v",
	}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "algorithm fedprox")
	assert.Contains(t, out.String(), "GLOBAL LOSS")
	assert.Contains(t, errOut.String(), `"msg":"round complete"`)
}

func TestRun_BadFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"run", "-algorithm", "fedsgd"}, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"run", "-nope"}, &out, &errOut))
}

func TestRun_InvalidConfigIsUsageError(t *testing.T) {
	tests := [][]string{
		{"run", "-rounds", "0"},
		{"run", "-alpha", "2"},
		{"run", "-join-ratio", "0"},
	}
	for _, args := range tests {
		var out, errOut bytes.Buffer
		code := run(context.Background(), args, &out, &errOut)
		assert.Equal(t, 2, code, "args %v", args)
		assert.Contains(t, errOut.String(), "invalid config")
		assert.Empty(t, out.String())
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, errOut bytes.Buffer
	code := run(ctx, []string{"run", "-rounds", "2"}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "simulation failed")
}
