package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/prompts"
)

func TestListPrompts(t *testing.T) {
	reg := registry.NewPromptRegistry()
	require.NoError(t, reg.RegisterPrompt("summary.user", &registry.PromptTemplate{Version: "2", Template: "x", Enabled: true}))
	require.NoError(t, reg.RegisterPrompt("agent.system", &registry.PromptTemplate{Version: "1", Template: "y"}))

	var buf bytes.Buffer
	require.NoError(t, listPrompts(&buf, reg))

	assert.Equal(t, "agent.system\tv1\tdisabled\nsummary.user\tv2\tenabled\n", buf.String())
}

func TestListPrompts_Defaults(t *testing.T) {
	reg, err := prompts.Load("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, listPrompts(&buf, reg))

	assert.Contains(t, buf.String(), prompts.AgentSystem+"\tv1\tenabled\n")
	assert.Contains(t, buf.String(), prompts.SummaryUser+"\tv1\tenabled\n")
}
