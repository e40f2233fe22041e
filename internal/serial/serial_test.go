package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/syncx/internal/value"
)

func TestMarshal(t *testing.T) {
	tests := []struct {
		name string
		s    Serializer
		in   any
		want string
	}{
		{name: "json is compact", s: JSON{}, in: map[string]any{"value": "changed"}, want: `{"value":"changed"}`},
		{name: "json keeps html", s: JSON{}, in: map[string]any{"a": "<b>"}, want: `{"a":"<b>"}`},
		{name: "json renders sets as sorted lists", s: JSON{}, in: map[string]any{"s": value.NewSet(3, 1, 2)}, want: `{"s":[1,2,3]}`},
		{name: "yaml block style", s: YAML{}, in: map[string]any{"value": "initial"}, want: "value: initial\n"},
		{name: "yaml nested", s: YAML{}, in: map[string]any{"a": []any{1, map[string]any{"b": true}}}, want: "a:\n  - 1\n  - b: true\n"},
		{name: "toml table", s: TOML{}, in: map[string]any{"name": "x", "port": 80}, want: "name = 'x'\nport = 80\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := value.From(tt.in)
			require.NoError(t, err)
			got, err := tt.s.Marshal(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestTOMLRequiresMapping(t *testing.T) {
	_, err := TOML{}.Marshal(value.NewList(1, 2))
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	in, err := value.From(map[string]any{
		"name":  "server",
		"port":  8080,
		"ratio": 0.5,
		"on":    true,
		"tags":  []any{"a", "b"},
		"inner": map[string]any{"depth": 2},
	})
	require.NoError(t, err)

	for _, s := range []Serializer{JSON{}, YAML{}, TOML{}} {
		t.Run(s.Extension(), func(t *testing.T) {
			data, err := s.Marshal(in)
			require.NoError(t, err)
			out, err := s.Unmarshal(data)
			require.NoError(t, err)
			assert.True(t, value.Equal(in, out), "got %v", value.Plain(out))
		})
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	for _, s := range []Serializer{JSON{}, YAML{}, TOML{}} {
		t.Run(s.Extension(), func(t *testing.T) {
			out, err := s.Unmarshal([]byte("  \n"))
			require.NoError(t, err)
			assert.Nil(t, out)
		})
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	tests := []struct {
		s    Serializer
		data string
	}{
		{s: JSON{}, data: "{invalid"},
		{s: YAML{}, data: "a: [1"},
		{s: TOML{}, data: "a = "},
	}
	for _, tt := range tests {
		t.Run(tt.s.Extension(), func(t *testing.T) {
			_, err := tt.s.Unmarshal([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path      string
		wantExt   string
		wantKnown bool
	}{
		{path: "data.json", wantExt: "json", wantKnown: true},
		{path: "data.yaml", wantExt: "yaml", wantKnown: true},
		{path: "data.YML", wantExt: "yaml", wantKnown: true},
		{path: "conf/data.toml", wantExt: "toml", wantKnown: true},
		{path: "data", wantExt: "yaml", wantKnown: false},
		{path: "data.txt", wantExt: "yaml", wantKnown: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s, known := ForPath(tt.path)
			assert.Equal(t, tt.wantExt, s.Extension())
			assert.Equal(t, tt.wantKnown, known)
		})
	}

	_, err := ForName("xml")
	assert.Error(t, err)
}
