package instrument

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse_Separators(t *testing.T) {
	for _, raw := range []string{"BTC/USDT", "btc-usdt", "BTC_USDT", " btc:usdt "} {
		p, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", raw, err)
		}
		if p.Base != "BTC" || p.Quote != "USDT" {
			t.Errorf("Parse(%q) = %+v", raw, p)
		}
		if p.Symbol() != "BTCUSDT" {
			t.Errorf("Symbol() = %s, want BTCUSDT", p.Symbol())
		}
		if p.String() != "BTC/USDT" {
			t.Errorf("String() = %s, want BTC/USDT", p.String())
		}
	}
}

func TestParse_Concatenated(t *testing.T) {
	p, err := Parse("ethbtc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Base != "ETH" || p.Quote != "BTC" {
		t.Errorf("got %+v", p)
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse("   "); !errors.Is(err, ErrEmptyPair) {
		t.Errorf("expected ErrEmptyPair, got %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{"BTC/", "B/USDT", "BTC/USDT/X", "XYZABC", "BTC$USDT"} {
		if _, err := Parse(raw); !errors.Is(err, ErrInvalidPair) {
			t.Errorf("Parse(%q): expected ErrInvalidPair, got %v", raw, err)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"ETH/USDT", "BTC/USDT", "btcusdt", "BTC-USDT", ""})
	want := []string{"BTCUSDT", "ETHUSDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe() = %v, want %v", got, want)
	}
}
