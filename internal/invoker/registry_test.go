package invoker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/testutil"
)

func staticInvoker(output map[string]any) core.Invoker {
	return core.InvokerFunc(func(context.Context, string, map[string]any, map[string]any) (map[string]any, error) {
		return output, nil
	})
}

func TestRegistry_Bind(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fetch", staticInvoker(map[string]any{"n": 1}))
	reg.Register("summarize", staticInvoker(nil))
	reg.Register("report", staticInvoker(nil))

	binding, err := reg.Bind(testutil.FetchSummarizeReport())

	require.NoError(t, err)
	assert.Len(t, binding, 3)
	out, err := binding["fetch"].Invoke(context.Background(), "fetch", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out["n"])
}

func TestRegistry_BindReportsEveryUnknownTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register("summarize", staticInvoker(nil))
	ws := testutil.NewTestWorkflow([]core.ToolSpec{
		testutil.Tool("sumarize"),
		testutil.Tool("deploy"),
	})

	_, err := reg.Bind(ws)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPlanning(core.CodeUnknownTool, "")))
	assert.Contains(t, err.Error(), `no invoker registered for tool "sumarize" (did you mean "summarize"?)`)
	assert.Contains(t, err.Error(), `tool "deploy"`)
}

func TestRegistry_Fallback(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Has("anything"))

	reg.SetFallback(staticInvoker(map[string]any{"via": "gateway"}))

	inv, err := reg.Get("anything")
	require.NoError(t, err)
	out, _ := inv.Invoke(context.Background(), "anything", nil, nil)
	assert.Equal(t, "gateway", out["via"])
	assert.True(t, reg.Has("anything"))
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", staticInvoker(nil))
	reg.Register("a", staticInvoker(nil))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
}
