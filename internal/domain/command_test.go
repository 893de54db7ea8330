package domain

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"id":"c1","action":"create_order","params":{"side":"BUY","size":0.02}}`))
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.ID != "c1" || cmd.Action != ActionCreateOrder {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseCommandRejectsBadInput(t *testing.T) {
	if _, err := ParseCommand([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := ParseCommand([]byte(`{"id":"x","action":"  "}`)); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestCreateOrderParamsInstrumentAliases(t *testing.T) {
	cases := []struct {
		params CreateOrderParams
		want   string
	}{
		{CreateOrderParams{ContractID: "10000001"}, "10000001"},
		{CreateOrderParams{Market: "BTC-USDT"}, "BTC-USDT"},
		{CreateOrderParams{Symbol: "BTCUSDT"}, "BTCUSDT"},
		{CreateOrderParams{ContractID: "a", Symbol: "b"}, "a"},
		{CreateOrderParams{}, ""},
	}
	for _, tc := range cases {
		if got := tc.params.Instrument(); got != tc.want {
			t.Fatalf("Instrument() = %q, want %q (%+v)", got, tc.want, tc.params)
		}
	}
}

func TestCreateOrderParamsToRequest(t *testing.T) {
	p := CreateOrderParams{
		Market: "BTC-USDT",
		Side:   "sell",
		Size:   0.05,
		Type:   "limit",
		Price:  60000,
	}
	req := p.OrderRequest()
	if req.Side != SideSell || req.Type != OrderTypeLimit {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Instrument != "BTC-USDT" || req.Size != 0.05 || req.Price != 60000 {
		t.Fatalf("fields lost: %+v", req)
	}
}
