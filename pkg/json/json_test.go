package json

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    map[string]interface{}
		wantErr bool
	}{
		{name: "empty body", body: "", want: map[string]interface{}{}},
		{name: "whitespace", body: "  \n", want: map[string]interface{}{}},
		{name: "object", body: `{"contacts":[{"id":"a"}],"meta":{"total":1}}`, want: map[string]interface{}{
			"contacts": []interface{}{map[string]interface{}{"id": "a"}},
			"meta":     map[string]interface{}{"total": float64(1)},
		}},
		{name: "array is not an object", body: `[1,2]`, wantErr: true},
		{name: "garbage", body: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeObject(strings.NewReader(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalPrettyKeepsHTML(t *testing.T) {
	out, err := MarshalPretty(map[string]string{"body": "<b>hi</b>"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"body\": \"<b>hi</b>\"\n}\n", string(out))
}
