package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocflowServerRegistersTools(t *testing.T) {
	srv, _ := newTestServer(t)

	require.NotNil(t, srv.MCPServer())
	tools := srv.tools()
	require.Len(t, tools, 6)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"docflow.start", "docflow.open", "docflow.commit",
		"docflow.pending", "docflow.history", "docflow.render",
	}, names)
}
