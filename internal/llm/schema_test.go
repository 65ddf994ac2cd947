package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type stage struct {
	Stage  string `json:"stage"`
	Amount string `json:"amount"`
}

type plan struct {
	Ratio   string  `json:"npkRatio"`
	Stages  []stage `json:"recommendations"`
	Healthy bool    `json:"healthy"`
}

func planSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"npkRatio": {Type: genai.TypeString},
			"healthy":  {Type: genai.TypeBoolean},
			"recommendations": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"stage":  {Type: genai.TypeString},
						"amount": {Type: genai.TypeString},
					},
					Required: []string{"stage", "amount"},
				},
			},
		},
		Required: []string{"npkRatio", "recommendations"},
	}
}

func TestDecodeValid(t *testing.T) {
	raw := `{"npkRatio":"4:2:1","healthy":true,"recommendations":[{"stage":"Basal","amount":"50 kg/acre"}]}`

	got, err := Decode[plan](raw, planSchema())
	require.NoError(t, err)
	assert.Equal(t, "4:2:1", got.Ratio)
	assert.True(t, got.Healthy)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, "Basal", got.Stages[0].Stage)
}

func TestDecodeStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"npkRatio\":\"1:1:1\",\"recommendations\":[]}\n```"

	got, err := Decode[plan](raw, planSchema())
	require.NoError(t, err)
	assert.Equal(t, "1:1:1", got.Ratio)
	assert.Empty(t, got.Stages)
}

func TestDecodeRejectsMismatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "the soil looks fine"},
		{name: "missing required", raw: `{"recommendations":[]}`},
		{name: "wrong type", raw: `{"npkRatio":4,"recommendations":[]}`},
		{name: "array expected", raw: `{"npkRatio":"4:2:1","recommendations":{}}`},
		{name: "nested missing", raw: `{"npkRatio":"4:2:1","recommendations":[{"stage":"Basal"}]}`},
		{name: "null value", raw: `{"npkRatio":null,"recommendations":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[plan](tt.raw, planSchema())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaMismatch), "got %v", err)
		})
	}
}

func TestDecodeTopLevelArray(t *testing.T) {
	schema := &genai.Schema{
		Type:  genai.TypeArray,
		Items: &genai.Schema{Type: genai.TypeInteger},
	}

	got, err := Decode[[]int](`[1, 2, 3]`, schema)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	_, err = Decode[[]int](`[1, 2.5]`, schema)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecodeWithoutSchema(t *testing.T) {
	got, err := Decode[map[string]string](`{"a":"b"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", got["a"])
}
