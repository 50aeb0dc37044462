package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"1e3", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"10000000000000", MaxPaise, true},
		{"10000000000000.01", 0, false},
		{"184467440737095516.17", 0, false}, // would wrap to 1 paisa in int64
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Paise != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Paise, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity("1,5")
	if err != nil || q.String() != "1.5" {
		t.Fatalf("got %v, %v", q, err)
	}
	for _, in := range []string{"0", "-2", "x"} {
		if _, err := ParseQuantity(in); err == nil {
			t.Fatalf("%q expected error", in)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		123456: "1234.56",
		-2050:  "-20.50",
	}
	for paise, want := range cases {
		if got := (Money{Paise: paise}).String(); got != want {
			t.Fatalf("%d: got %q, want %q", paise, got, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "7,25"}`), &v); err == nil {
		t.Fatalf("comma strings are not JSON numbers and should be rejected")
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "7.25"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Paise != 1250 || v.B.Paise != 725 {
		t.Fatalf("got %+v", v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":12.50,"b":7.25}` {
		t.Fatalf("marshal: %s", b)
	}
}

func TestMoneyJSONRejectsOutOfRange(t *testing.T) {
	for _, in := range []string{`184467440737095516.17`, `"184467440737095516.17"`, `-184467440737095516.17`} {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected ErrInvalidAmount, got %v (paise=%d)", in, err, m.Paise)
		}
	}
	if err := (Money{Paise: MaxPaise + 1}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount above MaxPaise, got %v", err)
	}
}
