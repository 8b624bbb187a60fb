package feed_test

import (
	"testing"

	"PerpTrade/internal/feed"
)

func TestParseMarkPriceUpdate_Valid(t *testing.T) {
	data := []byte(`{"feed":"ETH-FEED","price":240000,"price_sequence":7,"timestamp_us":1700000000000000}`)

	update, err := feed.ParseMarkPriceUpdate(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if update.Feed != "ETH-FEED" || update.Price != 240000 || update.PriceSequence != 7 {
		t.Fatalf("parsed fields wrong: %+v", update)
	}
}

func TestParseMarkPriceUpdate_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing feed", `{"price":240000,"price_sequence":1}`},
		{"zero price", `{"feed":"ETH-FEED","price":0,"price_sequence":1}`},
		{"negative price", `{"feed":"ETH-FEED","price":-1,"price_sequence":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := feed.ParseMarkPriceUpdate([]byte(tc.data)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}
