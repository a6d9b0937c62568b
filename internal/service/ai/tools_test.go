package ai

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func seededTools() *StoryTools {
	return NewStoryTools(rand.New(rand.NewPCG(1, 2)))
}

func TestSuggestCharacterNameFallbacks(t *testing.T) {
	st := seededTools()

	got := st.SuggestCharacterName("Western", "robot", "sheriff")
	assert.Equal(t, "fantasy", got.Genre)
	assert.Equal(t, "neutral", got.Gender)
	assert.Equal(t, "sheriff", got.Role)
	assert.Contains(t, characterNames["fantasy"]["neutral"], got.SuggestedName)
	require.Len(t, got.Alternatives, 3)
	for _, alt := range got.Alternatives {
		assert.Contains(t, characterNames["fantasy"]["neutral"], alt)
	}

	got = st.SuggestCharacterName("SCI-FI", "Female", "")
	assert.Equal(t, "sci-fi", got.Genre)
	assert.Equal(t, "female", got.Gender)
	assert.Contains(t, characterNames["sci-fi"]["female"], got.SuggestedName)
}

func TestSuggestPlotTwist(t *testing.T) {
	st := seededTools()
	got := st.SuggestPlotTwist("mystery", "the butler is missing")
	assert.Equal(t, "mystery", got.Genre)
	assert.Contains(t, plotTwists["mystery"], got.SuggestedTwist)
	assert.Equal(t, twistTip, got.Tip)
	assert.Equal(t, "the butler is missing", got.Context)

	assert.Equal(t, "fantasy", st.SuggestPlotTwist("", "").Genre)
}

func TestGetGenreElements(t *testing.T) {
	one := GetGenreElements("horror", "creatures")
	assert.Equal(t, "creatures", one.ElementType)
	assert.Equal(t, genreElements["horror"]["creatures"], one.Suggestions)

	all := GetGenreElements("romance", "all")
	assert.Len(t, all.Elements, 4)

	missing := GetGenreElements("romance", "creatures")
	assert.Equal(t, "Element type 'creatures' not found", missing.Error)
	assert.Equal(t, []string{"elements", "obstacles", "settings", "themes"}, missing.AvailableTypes)
}

func TestToolsChainInvokable(t *testing.T) {
	tools := InitToolsChain(seededTools())
	require.Len(t, tools, 3)

	ctx := context.Background()
	names := make([]string, 0, len(tools))
	byName := map[string]tool.InvokableTool{}
	for _, bt := range tools {
		info, err := bt.Info(ctx)
		require.NoError(t, err)
		names = append(names, info.Name)
		inv, ok := bt.(tool.InvokableTool)
		require.True(t, ok)
		byName[info.Name] = inv
	}
	slices.Sort(names)
	assert.Equal(t, []string{ToolGetGenreElements, ToolSuggestCharacterName, ToolSuggestPlotTwist}, names)

	out, err := byName[ToolGetGenreElements].InvokableRun(ctx, `{"genre":"adventure","element_type":"items"}`)
	require.NoError(t, err)
	assert.Equal(t, "adventure", gjson.Get(out, "genre").String())
	assert.Equal(t, "ancient map", gjson.Get(out, "suggestions.0").String())

	out, err = byName[ToolSuggestCharacterName].InvokableRun(ctx, `{"genre":"horror","gender":"male"}`)
	require.NoError(t, err)
	assert.Contains(t, characterNames["horror"]["male"], gjson.Get(out, "suggested_name").String())
}

func TestToolRunBudget(t *testing.T) {
	limiter := newToolRateLimiter(2, ToolCallWindow)
	ctx, run := withToolRun(context.Background(), "gen-1", limiter)

	require.NoError(t, allowTool(ctx, ToolSuggestPlotTwist))
	require.NoError(t, allowTool(ctx, ToolSuggestPlotTwist))
	assert.ErrorIs(t, allowTool(ctx, ToolGetGenreElements), errToolBudget)
	assert.Equal(t, []string{ToolSuggestPlotTwist}, run.Used())

	run.close()
	assert.NoError(t, allowTool(ctx, ToolGetGenreElements))
	assert.Equal(t, []string{ToolSuggestPlotTwist, ToolGetGenreElements}, run.Used())

	// outside a generation nothing is recorded or limited
	assert.NoError(t, allowTool(context.Background(), ToolSuggestPlotTwist))
}
