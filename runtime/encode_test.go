package cbor

import (
	"encoding/hex"
	"errors"
	"iter"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func encodeHex(t *testing.T, v any, opts *EncodeOptions) string {
	t.Helper()
	b, err := Encode(v, opts)
	if err != nil {
		t.Fatalf("Encode(%#v) error: %v", v, err)
	}
	return hex.EncodeToString(b)
}

func withFlags(f Flags) *EncodeOptions {
	o := DefaultEncodeOptions()
	o.Flags = f
	return &o
}

type point struct {
	X, Y int
}

func (p point) MarshalCBORValue() (any, error) { return []any{p.X, p.Y}, nil }

type failing struct{}

var errFailing = errors.New("no encoding")

func (failing) MarshalCBORValue() (any, error) { return nil, errFailing }

type record struct {
	Name    string `cbor:"name"`
	Age     int    `cbor:"age,omitempty"`
	Skipped string `cbor:"-"`
	Plain   bool
	hidden  int
}

func TestEncodeValues(t *testing.T) {
	bigPos := new(big.Int).Lsh(big.NewInt(1), 64)
	bigNeg := new(big.Int).Sub(new(big.Int).Neg(bigPos), big.NewInt(1))
	u, _ := url.Parse("http://www.example.com")

	cases := []struct {
		name string
		v    any
		want string
	}{
		{"nil", nil, "f6"},
		{"true", true, "f5"},
		{"false", false, "f4"},
		{"undefined", Undefined{}, "f7"},
		{"zero", 0, "00"},
		{"direct-max", 23, "17"},
		{"uint8", 24, "1818"},
		{"uint16", int64(1000), "1903e8"},
		{"uint64-max", uint64(math.MaxUint64), "1bffffffffffffffff"},
		{"minus-one", -1, "20"},
		{"minus-1000", int32(-1000), "3903e7"},
		{"int64-min", int64(math.MinInt64), "3b7fffffffffffffff"},
		{"int8", int8(-2), "21"},
		{"uint16-kind", uint16(500), "1901f4"},
		{"double", 1.1, "fb3ff199999999999a"},
		{"single", float32(1.5), "fa3fc00000"},
		{"Float32", Float32(100000), "fa47c35000"},
		{"Float16", Float16(0x3c00), "f93c00"},
		{"text", "a", "6161"},
		{"Text", Text("IETF"), "6449455446"},
		{"Byte", Byte("a"), "4161"},
		{"bytes", []byte{1, 2, 3, 4}, "4401020304"},
		{"byte-array", [2]byte{1, 2}, "420102"},
		{"nil-bytes", []byte(nil), "f6"},
		{"empty-array", []any{}, "80"},
		{"array", []any{1, []any{2, 3}}, "8201820203"},
		{"typed-slice", []int{1, 2, 3}, "83010203"},
		{"int-array", [3]int{1, 2, 3}, "83010203"},
		{"nil-slice", []string(nil), "f6"},
		{"map-insertion-order", omap("b", 1, "a", 2), "a2616201616102"},
		{"go-map-sorted", map[string]int{"b": 1, "a": 2}, "a2616102616201"},
		{"go-map-length-first", map[string]int{"aa": 1, "b": 2}, "a261620262616101"},
		{"go-map-int-keys", map[int]string{1: "a"}, "a161316161"},
		{"struct", record{Name: "x", Plain: true}, "a2646e616d65617865506c61696ef5"},
		{"struct-pointer", &record{Name: "x", Age: 3}, "a3646e616d656178636167650365506c61696ef4"},
		{"nil-pointer", (*record)(nil), "f6"},
		{"tag", &Tag{Number: 1, Content: 0}, "c100"},
		{"tag-value", Tag{Number: 23, Content: []byte{1}}, "d74101"},
		{"marshaler", point{1, 2}, "820102"},
		{"datetime", time.Date(2013, 3, 21, 20, 4, 0, 0, time.UTC), "c074323031332d30332d32315432303a30343a30305a"},
		{"datetime-fraction", time.Date(2013, 3, 21, 20, 4, 0, 500_000_000, time.UTC), "c076323031332d30332d32315432303a30343a30302e355a"},
		{"bignum-small", big.NewInt(-5), "24"},
		{"bignum-uint64-max", new(big.Int).SetUint64(math.MaxUint64), "1bffffffffffffffff"},
		{"bignum-neg-uint64", new(big.Int).Neg(bigPos), "3bffffffffffffffff"},
		{"bignum-pos", bigPos, "c249010000000000000000"},
		{"bignum-neg", bigNeg, "c349010000000000000000"},
		{"decimal", decimal.New(27315, -2), "c48221196ab3"},
		{"decimal-int", decimal.NewFromInt(5), "05"},
		{"decimal-positive-exp", decimal.New(1, 3), "c4820301"},
		{"uri", u, "d82076687474703a2f2f7777772e6578616d706c652e636f6d"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := encodeHex(t, tc.v, nil); got != tc.want {
				t.Fatalf("Encode(%#v): got %s want %s", tc.v, got, tc.want)
			}
		})
	}
}

func TestEncodeFlags(t *testing.T) {
	cases := []struct {
		name  string
		flags Flags
		v     any
		want  string
	}{
		{"string-as-bytes", FlagByte | FlagKeyText, "a", "4161"},
		{"keys-as-bytes", FlagText | FlagKeyByte, omap("a", "b"), "a141616162"},
		{"self-describe", DefaultFlags | FlagSelfDescribe, 1, "d9d9f701"},
		{"float16", DefaultFlags | FlagFloat16, 1.5, "f93e00"},
		{"float32", DefaultFlags | FlagFloat32, 1.5, "fa3fc00000"},
		{"compact-half", DefaultFlags | FlagFloat16 | FlagFloat32, 1.5, "f93e00"},
		{"compact-single", DefaultFlags | FlagFloat16 | FlagFloat32, 100000.0, "fa47c35000"},
		{"compact-double", DefaultFlags | FlagFloat16 | FlagFloat32, 1.1, "fb3ff199999999999a"},
		{"cde-narrows-single", DefaultFlags | FlagCDE, Float32(1.5), "f93e00"},
		{"cde-keeps-single", DefaultFlags | FlagCDE, Float32(100000), "fa47c35000"},
		{"cde-sorts-map", DefaultFlags | FlagCDE, omap("b", 1, "a", 2), "a2616102616201"},
		{"int-keys", DefaultFlags | FlagIntKey, omap("1", "a", "-2", "b", "x", "c", "01", "d"), "a4016161216162617861636230316164"},
		{"int-keys-wide", DefaultFlags | FlagIntKey, omap("-18446744073709551616", 0), "a13bffffffffffffffff00"},
		{"int-keys-go-map", DefaultFlags | FlagIntKey, map[int]string{1: "a"}, "a1016161"},
		{"unsafe-text", DefaultFlags | FlagUnsafeText, Text("\xff"), "61ff"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := encodeHex(t, tc.v, withFlags(tc.flags)); got != tc.want {
				t.Fatalf("Encode(%#v): got %s want %s", tc.v, got, tc.want)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	noTime := DefaultEncodeOptions()
	noTime.Datetime = false
	cde := DefaultEncodeOptions()
	cde.Flags |= FlagCDE

	cycle := []any{nil}
	cycle[0] = cycle
	self := NewMap(1)
	self.Set("self", self)

	cases := []struct {
		name string
		v    any
		opts *EncodeOptions
		want error
	}{
		{"no-string-flag", "a", withFlags(FlagKeyText), newError(CodeInvalidFlags, DetailNoStringFlag)},
		{"no-key-string-flag", omap("a", 1), withFlags(FlagText), newError(CodeInvalidFlags, DetailNoKeyStringFlag)},
		{"invalid-utf8", Text("\xff"), nil, ErrUTF8},
		{"unsupported-type", make(chan int), nil, ErrUnsupportedType},
		{"unsupported-func", func() {}, nil, ErrUnsupportedType},
		{"unsupported-key", map[float64]int{1: 1}, nil, ErrUnsupportedKeyType},
		{"datetime-disabled", time.Unix(0, 0), &noTime, ErrUnsupportedType},
		{"slice-cycle", cycle, nil, ErrRecursion},
		{"map-cycle", self, nil, ErrRecursion},
		{"marshaler-error", failing{}, nil, errFailing},
		{"cde-shareable", &Shareable{Value: 1}, &cde, ErrUnsupportedValue},
		{"nested-shareable", &Shareable{Value: &Shareable{}}, nil, ErrTagValue},
		{"dup-key-cde", map[any]int{"a": 1, Text("a"): 2}, &cde, ErrDuplicateKey},
		{"both-string-flags", 1, withFlags(FlagByte | FlagText), newError(CodeInvalidFlags, DetailBothStringFlag)},
		{"both-key-flags", 1, withFlags(FlagKeyByte | FlagKeyText | FlagText), newError(CodeInvalidFlags, DetailBothKeyStringFlag)},
		{"edn-flag", 1, withFlags(DefaultFlags | FlagEDN), ErrInvalidFlags},
		{"shared-with-cde", 1, &EncodeOptions{Flags: FlagCDE | DefaultFlags, SharedRef: SharedRefOn}, ErrInvalidOptions},
		{"max-depth-range", 1, &EncodeOptions{Flags: DefaultFlags, MaxDepth: -1}, ErrInvalidOptions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.v, tc.opts)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Encode: got %v want %v", err, tc.want)
			}
			if ce, ok := tc.want.(*CodeError); ok && ce.Detail != DetailNone {
				var got *CodeError
				if !errors.As(err, &got) || got.Detail != ce.Detail {
					t.Fatalf("Encode: detail of %v want %v", err, ce.Detail)
				}
			}
		})
	}
}

func TestEncodeMarshalerErrorContext(t *testing.T) {
	_, err := Encode([]any{failing{}}, nil)
	if Cause(err) != errFailing {
		t.Fatalf("Cause(%v) is not the marshaler error", err)
	}
	if want := "no encoding at cbor.failing"; err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestEncodeDepth(t *testing.T) {
	nested := func(n int) any {
		var v any = 0
		for i := 0; i < n; i++ {
			v = []any{v}
		}
		return v
	}
	cases := []struct {
		name  string
		v     any
		depth int
		ok    bool
	}{
		{"scalar-at-zero", 1, 0, true},
		{"array-at-zero", []any{}, 0, false},
		{"at-limit", nested(3), 3, true},
		{"over-limit", nested(4), 3, false},
		{"tag-counts", &Tag{Number: 1, Content: []any{}}, 1, false},
		{"decimal-counts-two", decimal.New(1, -1), 1, false},
		{"decimal-fits", decimal.New(1, -1), 2, true},
		{"datetime", time.Unix(0, 0).UTC(), 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultEncodeOptions()
			opts.MaxDepth = tc.depth
			_, err := Encode(tc.v, &opts)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrDepth) {
				t.Fatalf("got %v want ErrDepth", err)
			}
		})
	}
}

func TestEncodeIterators(t *testing.T) {
	seq := func(yield func(any) bool) {
		for _, v := range []any{1, 2} {
			if !yield(v) {
				return
			}
		}
	}
	pairs := func(yield func(any, any) bool) {
		if !yield("b", 1) {
			return
		}
		yield("a", 2)
	}
	var strPairs iter.Seq2[string, any] = func(yield func(string, any) bool) {
		yield("a", 1)
	}
	cde := withFlags(DefaultFlags | FlagCDE)

	cases := []struct {
		name string
		v    any
		opts *EncodeOptions
		want string
	}{
		{"seq", iter.Seq[any](seq), nil, "9f0102ff"},
		{"seq-cde", iter.Seq[any](seq), cde, "820102"},
		{"seq2", iter.Seq2[any, any](pairs), nil, "bf616201616102ff"},
		{"seq2-cde", iter.Seq2[any, any](pairs), cde, "a2616102616201"},
		{"seq2-string-keys", strPairs, nil, "bf616101ff"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := encodeHex(t, tc.v, tc.opts); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}

	dup := iter.Seq2[any, any](func(yield func(any, any) bool) {
		if !yield("a", 1) {
			return
		}
		yield("a", 2)
	})
	if _, err := Encode(dup, withFlags(DefaultFlags|FlagNoDupKey)); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("duplicate iterator key: got %v", err)
	}
}

func TestEncodeStringRefs(t *testing.T) {
	on := DefaultEncodeOptions()
	on.StringRef = StringRefOn
	explicit := DefaultEncodeOptions()
	explicit.StringRef = StringRefExplicit

	cases := []struct {
		name string
		v    any
		opts *EncodeOptions
		want string
	}{
		{"repeat", []any{"aaa", "aaa"}, &on, "d901008263616161d81900"},
		{"short", []any{"aa", "aa"}, &on, "d9010082626161626161"},
		{"separate-tables", []any{"aaa", Byte("aaa"), "aaa", Byte("aaa")}, &on, "d90100846361616143616161d81900d81901"},
		{"keys", omap("aaa", "aaa"), &on, "d90100a163616161d81900"},
		{"explicit-namespace", &Tag{Number: TagStringRefNS, Content: []any{"aaa", "aaa"}}, &explicit, "d901008263616161d81900"},
		{"explicit-without-namespace", []any{"aaa", "aaa"}, &explicit, "826361616163616161"},
		{"off-passes-tag", Tag{Number: TagStringRefNS, Content: []any{"aaa", "aaa"}}, nil, "d90100826361616163616161"},
		{"explicit-ref", &Tag{Number: TagStringRefNS, Content: []any{"aaa", Tag{Number: TagStringRef, Content: 0}}}, &explicit, "d901008263616161d81900"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := encodeHex(t, tc.v, tc.opts); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestEncodeStringRefTagErrors(t *testing.T) {
	explicit := DefaultEncodeOptions()
	explicit.StringRef = StringRefExplicit
	cases := []struct {
		name string
		v    any
		want error
	}{
		{"not-int", Tag{Number: TagStringRef, Content: "x"}, ErrTagType},
		{"no-namespace", Tag{Number: TagStringRef, Content: 0}, ErrTagSyntax},
		{"out-of-range", Tag{Number: TagStringRefNS, Content: []any{Tag{Number: TagStringRef, Content: 0}}}, ErrTagValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.v, &explicit); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestEncodeSharedRefs(t *testing.T) {
	on := DefaultEncodeOptions()
	on.SharedRef = SharedRefOn
	unsafe := DefaultEncodeOptions()
	unsafe.SharedRef = SharedRefUnsafe

	self := NewMap(1)
	self.Set("self", self)
	empty := NewMap(0)
	s := &Shareable{Value: 1}
	list := []any{1}
	tag := &Tag{Number: 1, Content: 0}
	inner := NewMap(0)
	boxed := &Shareable{Value: inner}

	cases := []struct {
		name string
		v    any
		opts *EncodeOptions
		want string
	}{
		{"self-map", self, &on, "d81ca16473656c66d81d00"},
		{"repeat-map", []any{empty, empty}, &on, "82d81ca0d81d00"},
		{"single-use", []any{empty}, &on, "81a0"},
		{"repeat-tag", []any{tag, tag}, &on, "82d81cc100d81d00"},
		{"shareable", []any{s, s}, &on, "82d81c01d81d00"},
		{"shareable-once", []any{s}, &on, "81d81c01"},
		{"shareable-content-alias", []any{boxed, inner}, &on, "82d81ca0d81d00"},
		{"slices-copied-when-safe", []any{list, list}, &on, "8281018101"},
		{"slices-shared-when-unsafe", []any{list, list}, &unsafe, "82d81c8101d81d00"},
		{"off", []any{empty, empty}, nil, "82a0a0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := encodeHex(t, tc.v, tc.opts); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestEncodeSharedRoundTrip(t *testing.T) {
	opts := DefaultEncodeOptions()
	opts.SharedRef = SharedRefOn
	m := NewMap(1)
	m.Set("self", m)
	b, err := Encode([]any{m, m}, &opts)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := Decode(b, sharedOpts(SharedRefOn))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	arr := got.([]any)
	dm := arr[0].(*Map)
	if arr[1] != any(dm) {
		t.Fatalf("second element is not the same map")
	}
	if v, _ := dm.Get("self"); v != any(dm) {
		t.Fatalf("self reference lost")
	}
}

func TestEncodeParams(t *testing.T) {
	cases := []struct {
		name string
		v    any
		want string
	}{
		{"byte-override", &EncodeParams{Value: "a", Flags: FlagByte}, "4161"},
		{"nested-restore", []any{EncodeParams{Value: "a", Flags: FlagByte}, "a"}, "8241616161"},
		{"key-override", &EncodeParams{Value: omap("a", 1), Flags: FlagKeyByte}, "a1416101"},
		{"cde-override", &EncodeParams{Value: omap("b", 1, "a", 2), Flags: FlagCDE}, "a2616102616201"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := encodeHex(t, tc.v, nil); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}

	cde := withFlags(DefaultFlags | FlagCDE)
	if _, err := Encode(&EncodeParams{Value: 1, FlagsClear: FlagCDE}, cde); !errors.Is(err, newError(CodeInvalidFlags, DetailClearCDE)) {
		t.Fatalf("clearing CDE: got %v", err)
	}
	p := &EncodeParams{Value: time.Unix(0, 0), Options: map[string]any{"datetime": false}}
	if _, err := Encode(p, nil); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("datetime override: got %v", err)
	}
	p = &EncodeParams{Value: 1, Options: map[string]any{"datetime": "yes"}}
	if _, err := Encode(p, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("bad option value: got %v", err)
	}
}

func TestAppend(t *testing.T) {
	dst := []byte{0xaa}
	out, err := Append(dst, 1, nil)
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if got := hex.EncodeToString(out); got != "aa01" {
		t.Fatalf("got %s want aa01", got)
	}
	out, err = Append(dst, make(chan int), nil)
	if err == nil || len(out) != 1 || out[0] != 0xaa {
		t.Fatalf("failed Append must return dst unchanged, got %x, %v", out, err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []any{
		int64(0), int64(-1), int64(math.MaxInt64), int64(math.MinInt64),
		1.5, Float16(0x3c00), Float32(2.5),
		"", "hello", Byte("\x00\x01"), true, false, nil, Undefined{},
		[]any{int64(1), "x", []any{}},
		omap("z", int64(1), "a", omap("b", []any{nil})),
		&Tag{Number: 99, Content: "t"},
	}
	for _, v := range values {
		b, err := Encode(v, nil)
		if err != nil {
			t.Fatalf("Encode(%#v) error: %v", v, err)
		}
		got, err := Decode(b, nil)
		if err != nil {
			t.Fatalf("Decode(%x) error: %v", b, err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("round trip of %#v gave %#v", v, got)
		}
	}
}
