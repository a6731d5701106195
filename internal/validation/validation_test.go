package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotBlank(t *testing.T) {
	v := New()

	cases := []struct {
		in   string
		want bool
	}{
		{"Ada", true},
		{"  Ada  ", true},
		{"", false},
		{" \t\n", false},
	}
	for _, tc := range cases {
		err := v.Var(tc.in, "notblank")
		assert.Equal(t, tc.want, err == nil, "%q", tc.in)
	}

	type payload struct {
		Name string `validate:"notblank"`
	}
	assert.Error(t, v.Struct(payload{Name: "  "}))
	assert.NoError(t, v.Struct(payload{Name: "Bob"}))
}
