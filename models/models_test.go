package models

import (
	"encoding/json"
	"testing"
)

func TestAttributesPreserveOrder(t *testing.T) {
	raw := `{"symbol":"BTCUSDT","status":"TRADING","underlyingSubType":["PoW"],"filters":[{"minPrice":"0.1"}],"onboardDate":1569398400000,"isFlag":true,"nothing":null}`

	attrs := NewAttributes()
	if err := json.Unmarshal([]byte(raw), attrs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"symbol", "status", "underlyingSubType", "filters", "onboardDate", "isFlag", "nothing"}
	keys := attrs.Keys()
	if len(keys) != len(want) {
		t.Fatalf("unexpected keys: %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: got %s want %s", i, keys[i], want[i])
		}
	}

	out, err := json.Marshal(attrs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("order not preserved:\n got %s\nwant %s", out, raw)
	}

	onboard, _ := attrs.Get("onboardDate")
	if onboard.Kind != KindNumber || onboard.Num.String() != "1569398400000" {
		t.Fatalf("number lost precision: %+v", onboard)
	}
	null, _ := attrs.Get("nothing")
	if null.Kind != KindNull {
		t.Fatalf("expected null, got %s", null.Kind)
	}
}

func TestAttributesDelete(t *testing.T) {
	attrs := NewAttributes()
	attrs.Set("a", StringValue("1"))
	attrs.Set("b", StringValue("2"))
	attrs.Set("a", StringValue("3"))
	attrs.Delete("a")
	if attrs.Len() != 1 || attrs.Keys()[0] != "b" {
		t.Fatalf("unexpected keys after delete: %v", attrs.Keys())
	}
	if _, ok := attrs.Get("a"); ok {
		t.Fatalf("deleted key still present")
	}
}

func TestExchangeInfoInstruments(t *testing.T) {
	raw := `{
		"serverTime": 1700000000000,
		"rateLimits": [{"rateLimitType":"REQUEST_WEIGHT","interval":"MINUTE","intervalNum":1,"limit":2400}],
		"symbols": [
			{"symbol":"BTCUSDT","underlyingSubType":["PoW", 7]},
			{"status":"TRADING"},
			{"symbol":"ETHUSDT"}
		]
	}`
	var info ExchangeInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(info.RateLimits) != 1 || info.RateLimits[0].Limit != 2400 {
		t.Fatalf("unexpected rate limits: %+v", info.RateLimits)
	}
	insts := info.Instruments()
	if len(insts) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(insts))
	}
	if insts[0].Symbol != "BTCUSDT" || len(insts[0].SubTypes) != 1 || insts[0].SubTypes[0] != "PoW" {
		t.Fatalf("unexpected first instrument: %+v", insts[0])
	}
	if insts[1].Symbol != "ETHUSDT" || len(insts[1].SubTypes) != 0 {
		t.Fatalf("unexpected second instrument: %+v", insts[1])
	}
}

func TestCoerceFloat(t *testing.T) {
	tests := []struct {
		raw   string
		want  float64
		valid bool
	}{
		{`101.5`, 101.5, true},
		{`"101.5"`, 101.5, true},
		{`42`, 42, true},
		{`" 7 "`, 7, true},
		{`""`, 0, false},
		{`"   "`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, false},
		{`true`, 0, false},
		{`[1]`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		got := CoerceFloat(json.RawMessage(tt.raw))
		if got.Valid != tt.valid || (tt.valid && got.Value != tt.want) {
			t.Errorf("CoerceFloat(%q) = %+v, want %v/%v", tt.raw, got, tt.want, tt.valid)
		}
	}
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		raw   string
		want  int64
		valid bool
	}{
		{`1700000000000`, 1700000000000, true},
		{`"1700000000000"`, 1700000000000, true},
		{`1.7e12`, 1700000000000, true},
		{`1.5`, 0, false},
		{`""`, 0, false},
		{`null`, 0, false},
	}
	for _, tt := range tests {
		got := CoerceInt(json.RawMessage(tt.raw))
		if got.Valid != tt.valid || (tt.valid && got.Value != tt.want) {
			t.Errorf("CoerceInt(%q) = %+v, want %v/%v", tt.raw, got, tt.want, tt.valid)
		}
	}
}

func TestCandleFromTuple(t *testing.T) {
	var tuple []json.RawMessage
	raw := `[1699996400000,"100.0","112.0","99.0","110.0","1234.5",1699999999999,"123450.0",321,"600.0","60000.0","0"]`
	if err := json.Unmarshal([]byte(raw), &tuple); err != nil {
		t.Fatalf("unmarshal tuple: %v", err)
	}
	c := CandleFromTuple(tuple)
	if !c.Valid() {
		t.Fatalf("expected valid candle: %+v", c)
	}
	if c.Open.Value != 100 || c.Close.Value != 110 || c.CloseTime.Value != 1699999999999 {
		t.Fatalf("positional mapping wrong: %+v", c)
	}
	if c.NumberOfTrades.Value != 321 || !c.Ignore.Valid {
		t.Fatalf("auxiliary fields wrong: %+v", c)
	}

	short := CandleFromTuple(tuple[:5])
	if short.Valid() || short.CloseTime.Valid {
		t.Fatalf("short tuple should lack closeTime: %+v", short)
	}
	if len(CandleFields) != 12 {
		t.Fatalf("unexpected candle field count %d", len(CandleFields))
	}
}

func TestCandleJSONUsesFieldNames(t *testing.T) {
	c := Candle{Open: SomeFloat(1), Close: SomeFloat(2), CloseTime: SomeInt(3)}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, name := range CandleFields {
		if _, ok := generic[name]; !ok {
			t.Fatalf("missing key %s in %s", name, data)
		}
	}
	if generic["high"] != nil {
		t.Fatalf("absent field should encode as null, got %v", generic["high"])
	}

	var back Candle
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !back.Valid() || back.High.Valid {
		t.Fatalf("unexpected decoded candle: %+v", back)
	}
}
