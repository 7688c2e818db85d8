package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorPresent(t *testing.T) {
	cases := []struct {
		name string
		in   UserDescriptor
		want bool
	}{
		{"nil", nil, false},
		{"empty", UserDescriptor(``), false},
		{"json null", UserDescriptor(`null`), false},
		{"object", UserDescriptor(`{"name":"a"}`), true},
		{"string", UserDescriptor(`"alice"`), true},
		{"number", UserDescriptor(`42`), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DescriptorPresent(tc.in))
		})
	}
}
