package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// OptFloat is a float that may be absent.
type OptFloat struct {
	Value float64
	Valid bool
}

func SomeFloat(v float64) OptFloat { return OptFloat{Value: v, Valid: true} }

func (o OptFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid || math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptFloat) UnmarshalJSON(data []byte) error {
	*o = CoerceFloat(data)
	return nil
}

// OptInt is an int64 that may be absent.
type OptInt struct {
	Value int64
	Valid bool
}

func SomeInt(v int64) OptInt { return OptInt{Value: v, Valid: true} }

func (o OptInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(o.Value, 10)), nil
}

func (o *OptInt) UnmarshalJSON(data []byte) error {
	*o = CoerceInt(data)
	return nil
}

// CoerceFloat leniently reads a raw JSON element as a float. Numbers and
// numeric strings are accepted; null, blank or non-numeric strings and any
// other JSON type are absent.
func CoerceFloat(raw json.RawMessage) OptFloat {
	text, ok := numericText(raw)
	if !ok {
		return OptFloat{}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return OptFloat{}
	}
	return SomeFloat(f)
}

// CoerceInt is the integer counterpart of CoerceFloat. Integral floats such
// as 1.7e12 are accepted.
func CoerceInt(raw json.RawMessage) OptInt {
	text, ok := numericText(raw)
	if !ok {
		return OptInt{}
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return SomeInt(i)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return OptInt{}
	}
	return SomeInt(int64(f))
}

func numericText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(trimmed), true
	default:
		return "", false
	}
}

// CandleFields is the positional layout of a kline tuple.
var CandleFields = [...]string{
	"openTime", "open", "high", "low", "close", "volume", "closeTime",
	"quoteAssetVolume", "numberOfTrades", "takerBuyBaseAssetVolume",
	"takerBuyQuoteAssetVolume", "ignore",
}

// Candle is one kline. Every field is optional because the upstream tuple
// elements are only leniently typed.
type Candle struct {
	OpenTime                 OptInt   `json:"openTime"`
	Open                     OptFloat `json:"open"`
	High                     OptFloat `json:"high"`
	Low                      OptFloat `json:"low"`
	Close                    OptFloat `json:"close"`
	Volume                   OptFloat `json:"volume"`
	CloseTime                OptInt   `json:"closeTime"`
	QuoteAssetVolume         OptFloat `json:"quoteAssetVolume"`
	NumberOfTrades           OptInt   `json:"numberOfTrades"`
	TakerBuyBaseAssetVolume  OptFloat `json:"takerBuyBaseAssetVolume"`
	TakerBuyQuoteAssetVolume OptFloat `json:"takerBuyQuoteAssetVolume"`
	Ignore                   OptFloat `json:"ignore"`
}

// CandleFromTuple zips a raw kline tuple onto CandleFields. Missing trailing
// elements stay absent and extra elements are ignored.
func CandleFromTuple(tuple []json.RawMessage) Candle {
	var c Candle
	at := func(i int) json.RawMessage {
		if i < len(tuple) {
			return tuple[i]
		}
		return nil
	}
	c.OpenTime = CoerceInt(at(0))
	c.Open = CoerceFloat(at(1))
	c.High = CoerceFloat(at(2))
	c.Low = CoerceFloat(at(3))
	c.Close = CoerceFloat(at(4))
	c.Volume = CoerceFloat(at(5))
	c.CloseTime = CoerceInt(at(6))
	c.QuoteAssetVolume = CoerceFloat(at(7))
	c.NumberOfTrades = CoerceInt(at(8))
	c.TakerBuyBaseAssetVolume = CoerceFloat(at(9))
	c.TakerBuyQuoteAssetVolume = CoerceFloat(at(10))
	c.Ignore = CoerceFloat(at(11))
	return c
}

// Valid reports whether the candle can anchor a movement calculation.
func (c Candle) Valid() bool {
	return c.Open.Valid && c.Close.Valid && c.CloseTime.Valid
}

// FetchResult is the raw capture for one instrument.
type FetchResult struct {
	Symbol   string   `json:"symbol"`
	SubTypes []string `json:"underlyingSubType"`
	Klines   []Candle `json:"klines"`
}
