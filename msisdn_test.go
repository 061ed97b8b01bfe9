package smsverify

import "testing"

func TestNormalizeMobile(t *testing.T) {
	cases := []struct {
		in        string
		countries []string
		want      string
	}{
		{"0825551234", []string{"ZA"}, "27825551234"},
		{"082 555 1234", []string{"ZA"}, "27825551234"},
		{"(082) 555-1234", []string{"ZA"}, "27825551234"},
		{"0825551234", []string{"BW", "ZA"}, "27825551234"},
		{"123", []string{"ZA"}, ""},
		{"", []string{"ZA"}, ""},
		{"0825551234", nil, ""},
	}
	for _, c := range cases {
		if got := NormalizeMobile(c.in, c.countries); got != c.want {
			t.Errorf("NormalizeMobile(%q, %v) = %q, expected %q", c.in, c.countries, got, c.want)
		}
	}
}

func TestNumbersOnly(t *testing.T) {
	if got := numbersOnly("+27 (82) 555-1234"); got != "27825551234" {
		t.Errorf("numbersOnly = %q", got)
	}
	if got := numbersOnly("0825551234"); got != "0825551234" {
		t.Errorf("numbersOnly = %q", got)
	}
}
