package stream

import (
	"strings"
	"testing"
)

func TestFeedURL(t *testing.T) {
	f := NewFeed(false, []string{"BTCUSDT", "ETHUSDT"}, nil)
	want := "wss://fstream.binance.com/stream?streams=btcusdt@markPrice@1s/ethusdt@markPrice@1s"
	if f.url != want {
		t.Errorf("url = %s, want %s", f.url, want)
	}

	f = NewFeed(true, []string{"BTCUSDT"}, nil)
	if !strings.Contains(f.url, "stream.binancefuture.com") {
		t.Errorf("testnet url = %s", f.url)
	}
}

func TestParseMarkPrice(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1700000000000,"s":"BTCUSDT","p":"50123.45000000","r":"0.00010000","T":1700000280000}}`)
	symbol, price, err := parseMarkPrice(msg)
	if err != nil {
		t.Fatalf("parseMarkPrice: %v", err)
	}
	if symbol != "BTCUSDT" || price != 50123.45 {
		t.Errorf("parsed (%s, %v)", symbol, price)
	}
}

func TestParseMarkPriceRejectsOtherEvents(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"50123.45"}}`)
	if _, _, err := parseMarkPrice(msg); err == nil {
		t.Error("aggTrade event accepted as mark price")
	}
}

func TestParseMarkPriceBadPayload(t *testing.T) {
	if _, _, err := parseMarkPrice([]byte(`not json`)); err == nil {
		t.Error("malformed payload accepted")
	}
}
