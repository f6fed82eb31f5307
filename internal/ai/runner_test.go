package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"surrounding space", "  \n```json\n{}\n```  \n", `{}`},
		{"unterminated", "```json\n{}", `{}`},
		{"fence only", "```", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	var v map[string]any
	assert.ErrorIs(t, decodeJSON("", &v), ErrInvalidResponse)
	assert.ErrorIs(t, decodeJSON("not json", &v), ErrInvalidResponse)
	require.NoError(t, decodeJSON("```json\n{\"ok\":true}\n```", &v))
	assert.Equal(t, true, v["ok"])
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", truncateString("hello", 10))
	assert.Equal(t, "hel", truncateString("hello", 3))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "caf", truncateString("café", 4))
}

func TestMatchItems(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		items []string
		want  []int
	}{
		{"in order", []string{"A", "B"}, []string{"a", "b"}, []int{0, 1}},
		{"reordered", []string{"A", "B"}, []string{"B", "A"}, []int{1, 0}},
		{"omitted", []string{"A", "B", "C"}, []string{"A", "C"}, []int{0, -1, 1}},
		{"renamed same length", []string{"Aqua (Water)", "B"}, []string{"Aqua", "B"}, []int{0, 1}},
		{"blank name keeps position", []string{"A"}, []string{""}, []int{0}},
		{"duplicates", []string{"A", "A"}, []string{"A", "A"}, []int{0, 1}},
		{"extra element", []string{"A"}, []string{"X", "A"}, []int{1}},
		{"empty answer", []string{"A"}, nil, []int{-1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]batchItem, len(tt.items))
			for i, n := range tt.items {
				items[i] = batchItem{Ingredient: n}
			}
			assert.Equal(t, tt.want, matchItems(tt.names, items))
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	items, err := decodeBatch(`[{"ingredient":"A","risk_level":"Low"}]`)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].Ingredient)

	items, err = decodeBatch(`{"ingredients":[{"ingredient":"B"}]}`)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].Ingredient)

	items, err = decodeBatch(`{"note":"x","analysis":[{"ingredient":"C"}]}`)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "C", items[0].Ingredient)

	_, err = decodeBatch(`{"note":"x"}`)
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = decodeBatch(`[{"ingredient": 5}]`)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
