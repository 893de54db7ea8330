package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/events"
	"github.com/betbot/hedgex/internal/execution"
	"github.com/betbot/hedgex/internal/feed"
	"github.com/betbot/hedgex/internal/governor"
)

// fakeClient 满足 ports.ExchangeClient + AccountReader，全部行为可注入
type fakeClient struct {
	orderID string
	fills   []domain.FillRecord
	submits int
}

func (f *fakeClient) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, json.RawMessage, error) {
	f.submits++
	return f.orderID, json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"canceled":%q}`, orderID)), nil
}

func (f *fakeClient) ActiveOrders(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeClient) Positions(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[{"symbol":"BTCUSDT"}]`), nil
}

func (f *fakeClient) Position(ctx context.Context, instrument string) (domain.Position, error) {
	return domain.Position{Instrument: instrument, SignedSize: 0.5}, nil
}

func (f *fakeClient) FillsByOrderID(ctx context.Context, instrument, orderID string, limit int) ([]domain.FillRecord, error) {
	return f.fills, nil
}

func (f *fakeClient) FillsByWindow(ctx context.Context, instrument string, startMs, endMs int64, limit int) ([]domain.FillRecord, error) {
	return f.fills, nil
}

func (f *fakeClient) Ticker(ctx context.Context, instrument string) (domain.PriceSnapshot, error) {
	return domain.PriceSnapshot{Bid: 60000, Ask: 60010, Mid: 60005}, nil
}

func (f *fakeClient) Depth(ctx context.Context, instrument string, limit int) (*domain.Orderbook, error) {
	return nil, fmt.Errorf("depth unavailable")
}

func (f *fakeClient) Account(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"balance":"100"}`), nil
}

func newTestService(t *testing.T, client *fakeClient, out *bytes.Buffer) *Service {
	t.Helper()
	gov := governor.New("test", time.Nanosecond)
	eng := execution.NewEngine(execution.Config{
		Venue:      "test",
		SettleWait: time.Millisecond,
	}, client, gov)
	return New(Options{
		Venue:      "test",
		Instrument: "BTC-USDT",
		Client:     client,
		Engine:     eng,
		Gov:        gov,
		Feed: feed.Config{
			Venue:        "test",
			Instrument:   "BTC-USDT",
			PollInterval: time.Hour, // 测试期间不触发拉取
		},
		Emitter: events.NewEmitter(out),
	})
}

func runWithInput(t *testing.T, svc *Service, input string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Run(ctx, strings.NewReader(input)); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func decodeEvents(t *testing.T, out *bytes.Buffer) []events.Event {
	t.Helper()
	var evts []events.Event
	dec := json.NewDecoder(bytes.NewReader(out.Bytes()))
	for dec.More() {
		var ev events.Event
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("decoding event stream: %v", err)
		}
		evts = append(evts, ev)
	}
	return evts
}

func findResults(t *testing.T, evts []events.Event) []events.CommandResult {
	t.Helper()
	var results []events.CommandResult
	for _, ev := range evts {
		if ev.Type != events.TypeCommandResult {
			continue
		}
		b, _ := json.Marshal(ev.Data)
		var res events.CommandResult
		if err := json.Unmarshal(b, &res); err != nil {
			t.Fatalf("command_result payload: %v", err)
		}
		results = append(results, res)
	}
	return results
}

func TestCreateOrderCommandEmitsResult(t *testing.T) {
	client := &fakeClient{
		orderID: "ord-1",
		fills: []domain.FillRecord{
			{OrderID: "ord-1", Size: 0.02, Price: 60005, Fee: 0.6, CreatedTimeMs: 1},
		},
	}
	var out bytes.Buffer
	svc := newTestService(t, client, &out)

	runWithInput(t, svc,
		`{"id":"c1","action":"create_order","params":{"contract_id":"BTC-USDT","side":"BUY","size":0.02,"type":"MARKET"}}`+"\n")

	results := findResults(t, decodeEvents(t, &out))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if !res.Success || res.ID != "c1" || res.Action != domain.ActionCreateOrder {
		t.Fatalf("unexpected result: %+v", res)
	}
	b, _ := json.Marshal(res.Data)
	var exec execution.Result
	if err := json.Unmarshal(b, &exec); err != nil {
		t.Fatalf("result data: %v", err)
	}
	if exec.OrderID != "ord-1" || exec.Fill == nil || !exec.Fill.Filled {
		t.Fatalf("fill not reconciled: %+v", exec)
	}
}

func TestDuplicateCommandIDProcessedOnce(t *testing.T) {
	client := &fakeClient{orderID: "ord-2"}
	var out bytes.Buffer
	svc := newTestService(t, client, &out)

	line := `{"id":"dup","action":"create_order","params":{"side":"SELL","size":0.01,"type":"MARKET"}}` + "\n"
	runWithInput(t, svc, line+line)

	if client.submits != 1 {
		t.Fatalf("submits = %d, want 1", client.submits)
	}
	if results := findResults(t, decodeEvents(t, &out)); len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestUnknownActionFailsWithoutExit(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer
	svc := newTestService(t, client, &out)

	runWithInput(t, svc,
		`{"id":"u1","action":"self_destruct"}`+"\n"+
			`{"id":"u2","action":"get_price"}`+"\n")

	results := findResults(t, decodeEvents(t, &out))
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	byID := map[string]events.CommandResult{}
	for _, r := range results {
		byID[r.ID] = r
	}
	if byID["u1"].Success || !strings.Contains(byID["u1"].Error, "unknown action") {
		t.Fatalf("unknown action result: %+v", byID["u1"])
	}
	if !byID["u2"].Success {
		t.Fatalf("get_price after bad action: %+v", byID["u2"])
	}
}

func TestMalformedLineEmitsErrorAndContinues(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer
	svc := newTestService(t, client, &out)

	runWithInput(t, svc,
		"{not json\n"+
			`{"id":"p1","action":"get_position","params":{"market":"ETH-USDT"}}`+"\n")

	evts := decodeEvents(t, &out)
	sawError := false
	for _, ev := range evts {
		if ev.Type == events.TypeError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("no error event for malformed line")
	}

	results := findResults(t, evts)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("position command after bad line: %+v", results)
	}
	b, _ := json.Marshal(results[0].Data)
	var pos domain.Position
	if err := json.Unmarshal(b, &pos); err != nil {
		t.Fatalf("position payload: %v", err)
	}
	if pos.Instrument != "ETH-USDT" || pos.SignedSize != 0.5 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestDryRunSkipsExchange(t *testing.T) {
	client := &fakeClient{orderID: "never"}
	var out bytes.Buffer
	svc := newTestService(t, client, &out)
	svc.opt.DryRun = true

	runWithInput(t, svc,
		`{"id":"d1","action":"create_order","params":{"side":"BUY","size":0.01,"type":"MARKET"}}`+"\n")

	if client.submits != 0 {
		t.Fatalf("dry run hit the exchange %d times", client.submits)
	}
	results := findResults(t, decodeEvents(t, &out))
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("dry run result: %+v", results)
	}
}

func TestLifecycleEventsEmitted(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer
	svc := newTestService(t, client, &out)

	runWithInput(t, svc, "")

	evts := decodeEvents(t, &out)
	var types []string
	for _, ev := range evts {
		types = append(types, ev.Type)
	}
	want := map[string]bool{
		events.TypeConnected: false,
		events.TypeReady:     false,
		events.TypeShutdown:  false,
	}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Fatalf("missing %s event, got %v", typ, types)
		}
	}
}
