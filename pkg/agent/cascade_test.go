package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCascadeFirstSuccessWins(t *testing.T) {
	var tried []string
	step := func(name string, ok bool) Strategy[string] {
		return Strategy[string]{Name: name, Find: func(_ *Snapshot, key string) (string, bool) {
			tried = append(tried, name)
			return name + ":" + key, ok
		}}
	}
	c := Cascade[string]{
		Operation:  "test",
		Strategies: []Strategy[string]{step("a", false), step("b", true), step("c", true)},
	}

	v, name, ok := c.Run(nil, "k")
	assert.True(t, ok)
	assert.Equal(t, "b", name)
	assert.Equal(t, "b:k", v)
	assert.Equal(t, []string{"a", "b"}, tried)
	assert.Equal(t, []string{"a", "b", "c"}, c.Names())
}

func TestCascadeExhausted(t *testing.T) {
	c := Cascade[int]{Strategies: []Strategy[int]{
		{Name: "never", Find: func(*Snapshot, string) (int, bool) { return 7, false }},
	}}
	v, name, ok := c.Run(nil, "")
	assert.False(t, ok)
	assert.Empty(t, name)
	assert.Zero(t, v)
}

func TestTrackingCascadeOrder(t *testing.T) {
	a, _ := newTestAgent(t, newFakePage(nil))

	tests := []struct {
		name     string
		html     string
		strategy string
		ids      []string
	}{
		{
			name:     "table links without a tracking header",
			html:     `<table><tr><td><a href="#">111111111111</a></td><td><a href="#">111111111111</a></td></tr></table>`,
			strategy: "table-clickables",
			ids:      []string{"111111111111"},
		},
		{
			name:     "links outside any table",
			html:     `<div><a href="#">1Z999AA10123456784</a></div>`,
			strategy: "page-clickables",
			ids:      []string{"1Z999AA10123456784"},
		},
		{
			name:     "ids embedded in link text",
			html:     `<div><a href="#"><span>Track 123456789012345</span></a><p>999999999999</p></div>`,
			strategy: "text-pattern",
			ids:      []string{"123456789012345"},
		},
		{
			name:     "field attribute label",
			html:     `<div><span data-field="trackingNumber">222222222222</span><a href="#">111111111111</a></div>`,
			strategy: "labeled-cells",
			ids:      []string{"222222222222"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := NewSnapshot("u", "<html><body>"+tt.html+"</body></html>")
			if err != nil {
				t.Fatal(err)
			}
			ids, name, ok := a.tracking.Run(snap, "")
			assert.True(t, ok)
			assert.Equal(t, tt.strategy, name)
			assert.Equal(t, tt.ids, ids)
		})
	}
}
