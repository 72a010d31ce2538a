package cbor

import (
	"encoding/hex"
	"math"
	"testing"
)

func TestAppenders(t *testing.T) {
	cases := []struct {
		name string
		got  []byte
		want string
	}{
		{"int-direct", AppendInt64(nil, 23), "17"},
		{"int-u8", AppendInt64(nil, 24), "1818"},
		{"int-u16", AppendInt64(nil, 500), "1901f4"},
		{"neg-direct", AppendInt64(nil, -24), "37"},
		{"neg-u8", AppendInt64(nil, -25), "3818"},
		{"neg-min", AppendInt64(nil, math.MinInt64), "3b7fffffffffffffff"},
		{"uint-max", AppendUint64(nil, math.MaxUint64), "1bffffffffffffffff"},
		{"map-empty", AppendMapHeader(nil, 0), "a0"},
		{"array-u32", AppendArrayHeader(nil, 65536), "9a00010000"},
		{"bytes", AppendBytes(nil, []byte{1, 2}), "420102"},
		{"byte-string", AppendByteString(nil, "a"), "4161"},
		{"text", AppendString(nil, "a"), "6161"},
		{"bool", AppendBool(AppendBool(nil, false), true), "f4f5"},
		{"nil-undefined", AppendUndefined(AppendNil(nil)), "f6f7"},
		{"break", AppendBreak(nil), "ff"},
		{"tag", AppendTag(nil, TagSelfDescribe), "d9d9f7"},
		{"self-describe", AppendSelfDescribeCBOR(nil), "d9d9f7"},
		{"f64", AppendFloat64(nil, 1.1), "fb3ff199999999999a"},
		{"f32", AppendFloat32(nil, 100000), "fa47c35000"},
		{"f16", AppendFloat16(nil, 0x3c00), "f93c00"},
		{"compact-half", AppendFloatCompact(nil, 1.5), "f93e00"},
		{"compact-single", AppendFloatCompact(nil, 100000), "fa47c35000"},
		{"compact-double", AppendFloatCompact(nil, 1.1), "fb3ff199999999999a"},
		{"compact-inf", AppendFloatCompact(nil, math.Inf(-1)), "f9fc00"},
		{"appends", AppendInt64([]byte{0x82}, 1), "8201"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hex.EncodeToString(tc.got); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}
