package ai

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const (
	ToolSuggestCharacterName = "suggest_character_name"
	ToolSuggestPlotTwist     = "suggest_plot_twist"
	ToolGetGenreElements     = "get_genre_elements"
)

const twistTip = "Foreshadow this twist subtly before the reveal for maximum impact"

// StoryTools draws suggestions from the genre catalog.
type StoryTools struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewStoryTools(rng *rand.Rand) *StoryTools {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &StoryTools{rng: rng}
}

// InitToolsChain builds the function-calling tools offered to the model.
func InitToolsChain(st *StoryTools) []tool.BaseTool {
	if st == nil {
		st = NewStoryTools(nil)
	}
	return []tool.BaseTool{
		utils.NewTool(characterNameInfo(), st.runCharacterName),
		utils.NewTool(plotTwistInfo(), st.runPlotTwist),
		utils.NewTool(genreElementsInfo(), st.runGenreElements),
	}
}

type characterNameParams struct {
	Genre  string `json:"genre"`
	Gender string `json:"gender"`
	Role   string `json:"role,omitempty"`
}

type CharacterName struct {
	SuggestedName string   `json:"suggested_name"`
	Genre         string   `json:"genre"`
	Gender        string   `json:"gender"`
	Alternatives  []string `json:"alternatives"`
	Role          string   `json:"role,omitempty"`
}

type plotTwistParams struct {
	Genre            string `json:"genre"`
	CurrentSituation string `json:"current_situation,omitempty"`
}

type PlotTwist struct {
	SuggestedTwist string `json:"suggested_twist"`
	Genre          string `json:"genre"`
	Tip            string `json:"tip"`
	Context        string `json:"context,omitempty"`
}

type genreElementsParams struct {
	Genre       string `json:"genre"`
	ElementType string `json:"element_type"`
}

type GenreElements struct {
	Genre          string              `json:"genre"`
	ElementType    string              `json:"element_type,omitempty"`
	Suggestions    []string            `json:"suggestions,omitempty"`
	Elements       map[string][]string `json:"elements,omitempty"`
	Error          string              `json:"error,omitempty"`
	AvailableTypes []string            `json:"available_types,omitempty"`
}

func characterNameInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolSuggestCharacterName,
		Desc: "Suggest an appropriate character name based on genre and gender. Use this when introducing a new character.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"genre": {
				Desc:     "The story genre (fantasy, sci-fi, mystery, romance, horror, adventure)",
				Type:     schema.String,
				Enum:     Genres,
				Required: true,
			},
			"gender": {
				Desc:     "Character gender preference",
				Type:     schema.String,
				Enum:     []string{"male", "female", "neutral"},
				Required: true,
			},
			"role": {
				Desc: "Brief description of character's role (e.g., 'hero', 'villain', 'mentor')",
				Type: schema.String,
			},
		}),
	}
}

func plotTwistInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolSuggestPlotTwist,
		Desc: "Suggest an unexpected plot twist appropriate for the genre. Use when the story needs excitement.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"genre": {
				Desc:     "The story genre",
				Type:     schema.String,
				Enum:     Genres,
				Required: true,
			},
			"current_situation": {
				Desc: "Brief description of current story situation",
				Type: schema.String,
			},
		}),
	}
}

func genreElementsInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolGetGenreElements,
		Desc: "Get genre-specific elements (settings, items, creatures/elements, themes) to enhance the story.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"genre": {
				Desc:     "The story genre",
				Type:     schema.String,
				Enum:     Genres,
				Required: true,
			},
			"element_type": {
				Desc:     "Type of element needed",
				Type:     schema.String,
				Enum:     []string{"settings", "items", "creatures", "themes", "all"},
				Required: true,
			},
		}),
	}
}

func (t *StoryTools) runCharacterName(ctx context.Context, params *characterNameParams) (*CharacterName, error) {
	if params == nil {
		return nil, errors.New("missing character name parameters")
	}
	if err := allowTool(ctx, ToolSuggestCharacterName); err != nil {
		return nil, err
	}
	return t.SuggestCharacterName(params.Genre, params.Gender, params.Role), nil
}

func (t *StoryTools) runPlotTwist(ctx context.Context, params *plotTwistParams) (*PlotTwist, error) {
	if params == nil {
		return nil, errors.New("missing plot twist parameters")
	}
	if err := allowTool(ctx, ToolSuggestPlotTwist); err != nil {
		return nil, err
	}
	return t.SuggestPlotTwist(params.Genre, params.CurrentSituation), nil
}

func (t *StoryTools) runGenreElements(ctx context.Context, params *genreElementsParams) (*GenreElements, error) {
	if params == nil {
		return nil, errors.New("missing genre element parameters")
	}
	if err := allowTool(ctx, ToolGetGenreElements); err != nil {
		return nil, err
	}
	return GetGenreElements(params.Genre, params.ElementType), nil
}

// SuggestCharacterName picks a name for genre and gender. Unknown genres
// fall back to fantasy and unknown genders to neutral.
func (t *StoryTools) SuggestCharacterName(genre, gender, role string) *CharacterName {
	genre = strings.ToLower(strings.TrimSpace(genre))
	gender = strings.ToLower(strings.TrimSpace(gender))
	byGender, ok := characterNames[genre]
	if !ok {
		genre = DefaultGenre
		byGender = characterNames[genre]
	}
	names, ok := byGender[gender]
	if !ok {
		gender = "neutral"
		names = byGender[gender]
	}

	t.mu.Lock()
	pick := names[t.rng.IntN(len(names))]
	perm := t.rng.Perm(len(names))
	t.mu.Unlock()

	alts := make([]string, 0, 3)
	for _, idx := range perm[:min(3, len(perm))] {
		alts = append(alts, names[idx])
	}
	return &CharacterName{
		SuggestedName: pick,
		Genre:         genre,
		Gender:        gender,
		Alternatives:  alts,
		Role:          role,
	}
}

// SuggestPlotTwist picks a twist for genre.
func (t *StoryTools) SuggestPlotTwist(genre, situation string) *PlotTwist {
	genre = strings.ToLower(strings.TrimSpace(genre))
	twists, ok := plotTwists[genre]
	if !ok {
		genre = DefaultGenre
		twists = plotTwists[genre]
	}
	t.mu.Lock()
	twist := twists[t.rng.IntN(len(twists))]
	t.mu.Unlock()
	return &PlotTwist{
		SuggestedTwist: twist,
		Genre:          genre,
		Tip:            twistTip,
		Context:        situation,
	}
}

// GetGenreElements returns one element category of genre, or all of them
// for "all". An unknown category reports the available ones.
func GetGenreElements(genre, elementType string) *GenreElements {
	genre = strings.ToLower(strings.TrimSpace(genre))
	elementType = strings.ToLower(strings.TrimSpace(elementType))
	elements, ok := genreElements[genre]
	if !ok {
		genre = DefaultGenre
		elements = genreElements[genre]
	}
	if elementType == "all" {
		return &GenreElements{Genre: genre, Elements: elements}
	}
	if list, ok := elements[elementType]; ok {
		return &GenreElements{Genre: genre, ElementType: elementType, Suggestions: list}
	}
	return &GenreElements{
		Genre:          genre,
		Error:          "Element type '" + elementType + "' not found",
		AvailableTypes: sortedKeys(elements),
	}
}
