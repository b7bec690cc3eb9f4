package values

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	src := map[string]interface{}{
		"nics": []interface{}{map[string]interface{}{"subnetName": "web"}},
		"tags": map[string]interface{}{"env": "test"},
	}
	out := CloneMap(src)
	out["nics"].([]interface{})[0].(map[string]interface{})["subnetName"] = "biz"
	out["tags"].(map[string]interface{})["env"] = "prod"

	assert.Equal(t, "web", src["nics"].([]interface{})[0].(map[string]interface{})["subnetName"])
	assert.Equal(t, "test", src["tags"].(map[string]interface{})["env"])
}

func TestInt(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  int
		ok    bool
	}{
		{"int", 3, 3, true},
		{"whole float", float64(4), 4, true},
		{"fractional float", 4.5, 0, false},
		{"json number", json.Number("7"), 7, true},
		{"string", "7", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Int(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPaths(t *testing.T) {
	m := map[string]interface{}{
		"osDisk": map[string]interface{}{"createOption": "fromImage", "diskSizeGB": float64(128)},
		"flag":   true,
	}
	assert.Equal(t, "fromImage", GetString(m, "osDisk.createOption"))
	assert.Equal(t, 128, GetInt(m, "osDisk.diskSizeGB", 0))
	assert.Equal(t, 9, GetInt(m, "osDisk.missing", 9))
	assert.True(t, GetBool(m, "flag"))
	assert.Nil(t, Get(m, "flag.nested"))
}

func TestNormalize(t *testing.T) {
	in := map[interface{}]interface{}{
		"list": []map[string]interface{}{{"a": 1}},
		"strs": []string{"x"},
	}
	out, ok := Normalize(in).(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{map[string]interface{}{"a": 1}}, out["list"])
	assert.Equal(t, []interface{}{"x"}, out["strs"])
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(nil))
	assert.True(t, IsBlank("  "))
	assert.True(t, IsBlank([]interface{}{}))
	assert.False(t, IsBlank(false))
	assert.False(t, IsBlank("x"))
}
