package ocr

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedEngine struct{ name string }

func (e namedEngine) Name() string { return e.name }

func (e namedEngine) Recognize(context.Context, []byte) (Result, error) {
	return Result{FinalText: e.name}, nil
}

func TestResult_Decode(t *testing.T) {
	var r Result
	require.NoError(t, json.Unmarshal([]byte(`{"final_text":"Total: 12.50","boxes":[{"box":[[0,0],[10,0],[10,5],[0,5]],"label":"Total:"}]}`), &r))
	assert.Equal(t, "Total: 12.50", r.Text())
	require.Len(t, r.Boxes, 1)
	assert.Equal(t, RectBox(0, 0, 10, 5), r.Boxes[0].Box)

	require.NoError(t, json.Unmarshal([]byte(`{"final_text":"","boxes":null}`), &r))
	assert.NotNil(t, r.Boxes)
	assert.Empty(t, r.Text())
}

func TestResult_TextFallsBackToBoxes(t *testing.T) {
	r := Result{Boxes: []Box{{Label: "line one"}, {Label: " "}, {Label: "line two"}}}
	assert.Equal(t, "line one\nline two", r.Text())
}

func TestManager(t *testing.T) {
	remote := namedEngine{"remote"}
	gemini := namedEngine{"gemini"}
	m := NewManager(remote, gemini, nil)

	assert.Equal(t, []string{"gemini", "remote"}, m.Names())
	assert.Equal(t, "remote", m.Get(1).Name())

	e, ok := m.Lookup("gemini")
	require.True(t, ok)
	_, ok = m.Lookup("deepseek")
	assert.False(t, ok)

	bound := m.ForChat(1)
	m.Set(1, e)
	assert.Equal(t, "gemini", m.Get(1).Name())
	assert.Equal(t, "remote", m.Get(2).Name())

	res, err := bound.Recognize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", res.FinalText)
}
