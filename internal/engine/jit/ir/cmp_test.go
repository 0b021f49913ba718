package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegerCmpCond(t *testing.T) {
	for _, tc := range []struct {
		c      IntegerCmpCond
		name   string
		signed bool
	}{
		{c: IntegerCmpCondEqual, name: "eq"},
		{c: IntegerCmpCondNotEqual, name: "neq"},
		{c: IntegerCmpCondSignedLessThan, name: "lt_s", signed: true},
		{c: IntegerCmpCondSignedGreaterThanOrEqual, name: "ge_s", signed: true},
		{c: IntegerCmpCondSignedGreaterThan, name: "gt_s", signed: true},
		{c: IntegerCmpCondSignedLessThanOrEqual, name: "le_s", signed: true},
		{c: IntegerCmpCondUnsignedLessThan, name: "lt_u"},
		{c: IntegerCmpCondUnsignedGreaterThanOrEqual, name: "ge_u"},
		{c: IntegerCmpCondUnsignedGreaterThan, name: "gt_u"},
		{c: IntegerCmpCondUnsignedLessThanOrEqual, name: "le_u"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.name, tc.c.String())
			require.Equal(t, tc.signed, tc.c.Signed())
		})
	}
	require.Panics(t, func() { _ = numIntegerCmpConds.String() })
}
