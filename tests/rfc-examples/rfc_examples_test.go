package tests

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	cbor "github.com/synadia-labs/cborcodec/runtime"
)

// rfcExample is one row of RFC 8949 Appendix A. edn is the rendering
// DecodeEDN produces (floats carry their encoding width indicator);
// roundTrip marks items that Decode followed by Encode reproduces byte
// for byte with default options.
type rfcExample struct {
	hex       string
	edn       string
	roundTrip bool
}

var rfcExamples = []rfcExample{
	{"00", "0", true},
	{"01", "1", true},
	{"0a", "10", true},
	{"17", "23", true},
	{"1818", "24", true},
	{"1819", "25", true},
	{"1864", "100", true},
	{"1903e8", "1000", true},
	{"1a000f4240", "1000000", true},
	{"1b000000e8d4a51000", "1000000000000", true},
	{"1bffffffffffffffff", "18446744073709551615", false},
	{"c249010000000000000000", "2(h'010000000000000000')", true},
	{"3bffffffffffffffff", "-18446744073709551616", false},
	{"c349010000000000000000", "3(h'010000000000000000')", true},
	{"20", "-1", true},
	{"29", "-10", true},
	{"3863", "-100", true},
	{"3903e7", "-1000", true},

	{"f90000", "0.0_1", true},
	{"f98000", "-0.0_1", true},
	{"f93c00", "1.0_1", true},
	{"fb3ff199999999999a", "1.1_3", true},
	{"f93e00", "1.5_1", true},
	{"f97bff", "65504.0_1", true},
	{"fa47c35000", "100000.0_2", true},
	{"fa7f7fffff", "3.40282347e+38_2", true},
	{"fb7e37e43c8800759c", "1.0e+300_3", true},
	{"f90001", "5.9605e-08_1", true},
	{"f90400", "6.1035e-05_1", true},
	{"f9c400", "-4.0_1", true},
	{"fbc010666666666666", "-4.1_3", true},
	{"f97c00", "Infinity_1", true},
	{"f97e00", "NaN_1", true},
	{"f9fc00", "-Infinity_1", true},
	{"fa7f800000", "Infinity_2", true},
	{"fa7fc00000", "NaN_2", true},
	{"faff800000", "-Infinity_2", true},
	{"fb7ff0000000000000", "Infinity_3", true},
	{"fb7ff8000000000000", "NaN_3", true},
	{"fbfff0000000000000", "-Infinity_3", true},

	{"f4", "false", true},
	{"f5", "true", true},
	{"f6", "null", true},
	{"f7", "undefined", true},
	{"f0", "simple(16)", false},
	{"f8ff", "simple(255)", false},

	{"c074323031332d30332d32315432303a30343a30305a", `0("2013-03-21T20:04:00Z")`, true},
	{"c11a514b67b0", "1(1363896240)", true},
	{"c1fb41d452d9ec200000", "1(1363896240.5_3)", true},
	{"d74401020304", "23(h'01020304')", true},
	{"d818456449455446", "24(h'6449455446')", true},
	{"d82076687474703a2f2f7777772e6578616d706c652e636f6d", `32("http://www.example.com")`, true},

	{"40", "h''", true},
	{"4401020304", "h'01020304'", true},
	{"60", `""`, true},
	{"6161", `"a"`, true},
	{"6449455446", `"IETF"`, true},
	{"62225c", `"\"\\"`, true},
	{"62c3bc", `"ü"`, true},
	{"63e6b0b4", `"水"`, true},
	{"64f0908591", `"𐅑"`, true},

	{"80", "[]", true},
	{"83010203", "[1, 2, 3]", true},
	{"8301820203820405", "[1, [2, 3], [4, 5]]", true},
	{"98190102030405060708090a0b0c0d0e0f101112131415161718181819",
		"[1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25]", true},
	{"a0", "{}", true},
	{"a201020304", "{1: 2, 3: 4}", false},
	{"a26161016162820203", `{"a": 1, "b": [2, 3]}`, true},
	{"826161a161626163", `["a", {"b": "c"}]`, true},
	{"a56161614161626142616361436164614461656145", `{"a": "A", "b": "B", "c": "C", "d": "D", "e": "E"}`, true},

	{"5f42010243030405ff", "(_ h'0102', h'030405')", false},
	{"7f657374726561646d696e67ff", `(_ "strea", "ming")`, false},
	{"9fff", "[_ ]", false},
	{"9f018202039f0405ffff", "[_ 1, [2, 3], [_ 4, 5]]", false},
	{"9f01820203820405ff", "[_ 1, [2, 3], [4, 5]]", false},
	{"83018202039f0405ff", "[1, [2, 3], [_ 4, 5]]", false},
	{"83019f0203ff820405", "[1, [_ 2, 3], [4, 5]]", false},
	{"9f0102030405060708090a0b0c0d0e0f101112131415161718181819ff",
		"[_ 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25]", false},
	{"bf61610161629f0203ffff", `{_ "a": 1, "b": [_ 2, 3]}`, false},
	{"826161bf61626163ff", `["a", {_ "b": "c"}]`, false},
	{"bf6346756ef563416d7421ff", `{_ "Fun": true, "Amt": -2}`, false},
}

func TestRFCExamplesEDNAndWellFormed(t *testing.T) {
	for _, ex := range rfcExamples {
		t.Run(ex.hex, func(t *testing.T) {
			msg, err := hex.DecodeString(ex.hex)
			if err != nil {
				t.Fatalf("bad hex %q: %v", ex.hex, err)
			}

			got, err := cbor.DecodeEDN(msg, nil)
			if err != nil {
				t.Fatalf("DecodeEDN error: %v", err)
			}
			if got != ex.edn {
				t.Fatalf("edn mismatch: got %q want %q (hex %s)", got, ex.edn, ex.hex)
			}

			if err := cbor.ValidateWellFormed(msg, nil); err != nil {
				t.Fatalf("ValidateWellFormed error: %v", err)
			}
		})
	}
}

func TestRFCExamplesRoundTrip(t *testing.T) {
	for _, ex := range rfcExamples {
		if !ex.roundTrip {
			continue
		}
		t.Run(ex.hex, func(t *testing.T) {
			msg, err := hex.DecodeString(ex.hex)
			if err != nil {
				t.Fatalf("bad hex %q: %v", ex.hex, err)
			}
			v, err := cbor.Decode(msg, nil)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			out, err := cbor.Encode(v, nil)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if !bytes.Equal(out, msg) {
				t.Fatalf("round trip: got %x want %s", out, ex.hex)
			}
		})
	}
}

// Items that decode to values outside the default value model.
func TestRFCExamplesDecodeErrors(t *testing.T) {
	cases := []struct {
		hex  string
		want error
	}{
		{"1bffffffffffffffff", cbor.ErrUnsupportedValue},
		{"3bffffffffffffffff", cbor.ErrUnsupportedValue},
		{"f0", cbor.ErrUnsupportedType},
		{"a201020304", cbor.ErrUnsupportedKeyType},
	}
	for _, tc := range cases {
		msg, err := hex.DecodeString(tc.hex)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := cbor.Decode(msg, nil); !errors.Is(err, tc.want) {
			t.Errorf("Decode(%s) = %v, want %v", tc.hex, err, tc.want)
		}
	}
}
