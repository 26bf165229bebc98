package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		args []string
		want command
	}{
		{nil, command{name: cmdUp}},
		{[]string{"STATUS"}, command{name: cmdStatus}},
		{[]string{"redo"}, command{name: cmdRedo}},
		{[]string{"to", "20260301120000"}, command{name: cmdTo, arg: "20260301120000"}},
		{[]string{"create", " add_receipts "}, command{name: cmdCreate, arg: "add_receipts"}},
	}
	for _, tc := range cases {
		got, err := parseCommand(tc.args)
		require.NoError(t, err, "%v", tc.args)
		assert.Equal(t, tc.want, got)
	}
}

func TestParseCommandRejectsBadArgs(t *testing.T) {
	for _, args := range [][]string{
		{"to"},
		{"create", ""},
		{"create", "a", "b"},
		{"up", "now"},
		{"seed"},
		{" "},
	} {
		_, err := parseCommand(args)
		assert.Error(t, err, "%v", args)
	}
}
