package questions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

func fieldByName(t *testing.T, name string) specification.FieldDefinition {
	t.Helper()
	for _, f := range specification.DefaultFields() {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no field %s", name)
	return specification.FieldDefinition{}
}

func TestGenerator_GenerateQuestion(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	t.Run("every field renders", func(t *testing.T) {
		for _, f := range specification.DefaultFields() {
			q, err := g.GenerateQuestion(f, nil, ActionAsk)
			require.NoError(t, err, f.Name)
			assert.NotEmpty(t, q, f.Name)
			assert.NotContains(t, q, "Hmm", f.Name)
		}
	})

	t.Run("operation lists options", func(t *testing.T) {
		q, err := g.GenerateQuestion(fieldByName(t, specification.FieldOperation), nil, ActionAsk)
		require.NoError(t, err)
		assert.Equal(t, "How should the window open? You can choose hung, slider, casement, awning or fixed.", q)
	})

	t.Run("height mentions known width", func(t *testing.T) {
		q, err := g.GenerateQuestion(fieldByName(t, specification.FieldHeight), specification.Specification{"width": 36}, ActionAsk)
		require.NoError(t, err)
		assert.Equal(t, `And how tall is the 36"-wide window, in inches?`, q)
	})

	t.Run("correction quotes the bad value", func(t *testing.T) {
		q, err := g.GenerateQuestion(fieldByName(t, specification.FieldWidth), specification.Specification{"width": 500}, ActionCorrect)
		require.NoError(t, err)
		assert.Equal(t, "Hmm, 500 doesn't work for the width. How wide is the window, in inches? (between 12 and 120)", q)

		q, err = g.GenerateQuestion(fieldByName(t, specification.FieldColor), specification.Specification{"frame_color": "purple"}, ActionCorrect)
		require.NoError(t, err)
		assert.Contains(t, q, `"purple"`)
	})

	t.Run("unknown field falls back", func(t *testing.T) {
		q, err := g.GenerateQuestion(specification.FieldDefinition{Name: "hardware", Label: "hardware finish"}, nil, ActionAsk)
		require.NoError(t, err)
		assert.Equal(t, "What would you like for the hardware finish?", q)
	})
}

func TestGenerator_GenerateProgressMessage(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	msg, err := g.GenerateProgressMessage(27, []string{"width", "height", "operation style", "frame color"})
	require.NoError(t, err)
	assert.Equal(t, "27% complete. Still needed: width, height and operation style.", msg)

	msg, err = g.GenerateProgressMessage(100, nil)
	require.NoError(t, err)
	assert.Equal(t, "100% complete.", msg)
}
