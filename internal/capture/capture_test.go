package capture

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFigure struct {
	data    []byte
	err     error
	cleared int
	log     *[]string
}

func (f *stubFigure) PNG() ([]byte, error) {
	if f.log != nil {
		*f.log = append(*f.log, "png")
	}
	return f.data, f.err
}

func (f *stubFigure) Clear() {
	if f.log != nil {
		*f.log = append(*f.log, "clear")
	}
	f.cleared++
}

func TestTextHookTrimsAndDropsWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		write string
		want  []Item
	}{
		{name: "plain", write: "hello", want: []Item{Text("hello")}},
		{name: "surrounding whitespace", write: "  hi there \n", want: []Item{Text("hi there")}},
		{name: "newline only", write: "\n", want: []Item{}},
		{name: "spaces and newline", write: "   \n", want: []Item{}},
		{name: "empty", write: "", want: []Item{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewSink()
			h := NewTextHook(sink)
			n, err := h.Write([]byte(tt.write))
			require.NoError(t, err)
			assert.Equal(t, len(tt.write), n)
			assert.Equal(t, tt.want, sink.Items())
		})
	}
}

func TestTextHookFlushIsNoop(t *testing.T) {
	sink := NewSink()
	h := NewTextHook(sink)
	require.NoError(t, h.Flush())
	assert.Zero(t, sink.Len())
}

func TestVisualHookSnapshotsThenClears(t *testing.T) {
	var calls []string
	sink := NewSink()
	fig := &stubFigure{data: []byte("\x89PNG fake"), log: &calls}

	require.NoError(t, NewVisualHook(sink).Show(fig))

	// Mutating the figure afterwards must not change the stored item.
	fig.data[0] = 'X'

	items := sink.Items()
	require.Len(t, items, 1)
	assert.Equal(t, TypeImage, items[0].Type)
	raw, err := base64.StdEncoding.DecodeString(items[0].Content)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), raw)
	assert.Equal(t, []string{"png", "clear"}, calls)
}

func TestVisualHookSerializeError(t *testing.T) {
	sink := NewSink()
	fig := &stubFigure{err: errors.New("no canvas")}

	err := NewVisualHook(sink).Show(fig)
	require.Error(t, err)
	assert.Zero(t, sink.Len())
	assert.Zero(t, fig.cleared)
}

func TestSinkPreservesOrder(t *testing.T) {
	sink := NewSink()
	text := NewTextHook(sink)
	visual := NewVisualHook(sink)

	text.WriteString("before")
	require.NoError(t, visual.Show(&stubFigure{data: []byte("img")}))
	text.WriteString("after")

	items := sink.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []ItemType{TypeText, TypeImage, TypeText},
		[]ItemType{items[0].Type, items[1].Type, items[2].Type})
}

func TestSinkItemsIsACopy(t *testing.T) {
	sink := NewSink()
	sink.Append(Text("a"))
	items := sink.Items()
	items[0] = Text("changed")
	assert.Equal(t, "a", sink.Items()[0].Content)
}

func TestResultJSON(t *testing.T) {
	sink := NewSink()

	data, err := json.Marshal(Success(sink))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": null, "outputs": []}`, string(data))

	sink.Append(Text("hello"))
	res := Failure(sink, "boom")
	assert.True(t, res.Failed())
	assert.Equal(t, "boom", res.ErrorMessage())
	data, err = json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "boom", "outputs": [{"type": "text", "content": "hello"}]}`, string(data))
}

func TestResultCount(t *testing.T) {
	res := Result{Outputs: []Item{Text("a"), Image([]byte("x")), Text("b")}}
	text, images := res.Count()
	assert.Equal(t, 2, text)
	assert.Equal(t, 1, images)
}
