package filter

import (
	"encoding/json"
	"testing"

	"moverscan/models"
)

func instrument(t *testing.T, raw string) models.Instrument {
	t.Helper()
	attrs := models.NewAttributes()
	if err := json.Unmarshal([]byte(raw), attrs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	inst, ok := models.NewInstrument(attrs)
	if !ok {
		t.Fatalf("instrument without symbol: %s", raw)
	}
	return inst
}

const btc = `{
	"symbol": "BTCUSDT",
	"status": "TRADING",
	"contractType": "PERPETUAL",
	"quoteAsset": "USDT",
	"underlyingSubType": ["PoW", "Layer-1"],
	"pricePrecision": 2,
	"maintMarginPercent": 2.5000,
	"requiredMarginPercent": 5.0,
	"triggerProtect": "0.0500",
	"isHot": true,
	"deliveryNote": null,
	"meta": {"tier": 1, "tags": ["a"]}
}`

func TestMatch(t *testing.T) {
	inst := instrument(t, btc)

	tests := []struct {
		name       string
		predicates map[string]string
		want       bool
	}{
		{"empty predicates", map[string]string{}, true},
		{"string equal", map[string]string{"status": "TRADING"}, true},
		{"string differs", map[string]string{"status": "BREAK"}, false},
		{"and across keys", map[string]string{"quoteAsset": "USDT", "contractType": "PERPETUAL"}, true},
		{"and one fails", map[string]string{"quoteAsset": "USDT", "contractType": "CURRENT_QUARTER"}, false},
		{"array contains", map[string]string{"underlyingSubType": "Layer-1"}, true},
		{"array missing element", map[string]string{"underlyingSubType": "Meme"}, false},
		{"number equal", map[string]string{"pricePrecision": "2"}, true},
		{"number equal by value", map[string]string{"pricePrecision": "2.0"}, true},
		{"number differs", map[string]string{"pricePrecision": "3"}, false},
		{"float literal trailing zeros", map[string]string{"maintMarginPercent": "2.5"}, true},
		{"integer literal matches float attribute", map[string]string{"requiredMarginPercent": "5"}, true},
		{"float differs", map[string]string{"maintMarginPercent": "2.4"}, false},
		{"number not numeric", map[string]string{"pricePrecision": "two"}, false},
		{"bool equal", map[string]string{"isHot": "true"}, true},
		{"bool differs", map[string]string{"isHot": "false"}, false},
		{"null", map[string]string{"deliveryNote": "null"}, true},
		{"null vs text", map[string]string{"deliveryNote": ""}, false},
		{"object structural", map[string]string{"meta": `{"tags":["a"],"tier":1}`}, true},
		{"object differs", map[string]string{"meta": `{"tier":2,"tags":["a"]}`}, false},
		{"object bad literal", map[string]string{"meta": `{`}, false},
		{"missing key", map[string]string{"marginAsset": "USDT"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(inst, tt.predicates); got != tt.want {
				t.Fatalf("Match(%v) = %v, want %v", tt.predicates, got, tt.want)
			}
		})
	}
}

func TestMatchFlipsWhenKeyDeleted(t *testing.T) {
	predicates := map[string]string{"status": "TRADING", "underlyingSubType": "PoW", "pricePrecision": "2"}
	for key := range predicates {
		inst := instrument(t, btc)
		if !Match(inst, predicates) {
			t.Fatalf("expected match before deleting %s", key)
		}
		inst.Attributes.Delete(key)
		if Match(inst, predicates) {
			t.Fatalf("expected no match after deleting %s", key)
		}
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	insts := []models.Instrument{
		instrument(t, `{"symbol":"A","status":"TRADING"}`),
		instrument(t, `{"symbol":"B","status":"SETTLING"}`),
		instrument(t, `{"symbol":"C","status":"TRADING"}`),
	}
	got := Apply(insts, map[string]string{"status": "TRADING"})
	if len(got) != 2 || got[0].Symbol != "A" || got[1].Symbol != "C" {
		t.Fatalf("unexpected selection: %+v", got)
	}
}
