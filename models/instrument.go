package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one attribute value of an instrument as published by the exchange.
type Value struct {
	Kind Kind
	Bool bool
	Num  json.Number
	Str  string
	Arr  []Value
	Obj  *Attributes
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

func NumberValue(n string) Value { return Value{Kind: KindNumber, Num: json.Number(n)} }

func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Equal reports structural equality. Numbers compare by their float value.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		a, errA := v.Num.Float64()
		b, errB := o.Num.Float64()
		if errA != nil || errB != nil {
			return v.Num == o.Num
		}
		return a == b
	case KindString:
		return v.Str == o.Str
	case KindArray:
		if len(v.Arr) != len(o.Arr) {
			return false
		}
		for i := range v.Arr {
			if !v.Arr[i].Equal(o.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.Obj.Equal(o.Obj)
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		if v.Num == "" {
			return []byte("0"), nil
		}
		return []byte(v.Num), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		if v.Arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Arr)
	case KindObject:
		if v.Obj == nil {
			return []byte("{}"), nil
		}
		return v.Obj.MarshalJSON()
	}
	return nil, fmt.Errorf("unknown value kind %s", v.Kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseValue decodes a JSON literal into a Value.
func ParseValue(data []byte) (Value, error) {
	var v Value
	err := v.UnmarshalJSON(data)
	return v, err
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return Value{Kind: KindNumber, Num: t}, nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			arr := []Value{}
			for dec.More() {
				elem, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, elem)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{Kind: KindArray, Arr: arr}, nil
		case '{':
			obj, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindObject, Obj: obj}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected json token %v", tok)
}

// decodeObject reads members up to and including the closing brace. The
// opening brace must already be consumed.
func decodeObject(dec *json.Decoder) (*Attributes, error) {
	attrs := NewAttributes()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", keyTok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		attrs.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Attributes is an insertion-ordered mapping of attribute name to Value.
type Attributes struct {
	keys   []string
	values map[string]Value
}

func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]Value)}
}

// Set adds or replaces key. Replacing keeps the original position.
func (a *Attributes) Set(key string, v Value) {
	if a.values == nil {
		a.values = make(map[string]Value)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

func (a *Attributes) Get(key string) (Value, bool) {
	if a == nil {
		return Value{}, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Delete removes key if present.
func (a *Attributes) Delete(key string) {
	if a == nil {
		return
	}
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Equal compares members regardless of order.
func (a *Attributes) Equal(o *Attributes) bool {
	if a.Len() != o.Len() {
		return false
	}
	for _, k := range a.Keys() {
		ov, ok := o.Get(k)
		if !ok {
			return false
		}
		av, _ := a.Get(k)
		if !av.Equal(ov) {
			return false
		}
	}
	return true
}

func (a *Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if a != nil {
		for i, k := range a.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			val, err := a.values[k].MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", k, err)
			}
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes must be a json object")
	}
	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

// Instrument is a tradable symbol with its exchange metadata.
type Instrument struct {
	Symbol     string
	SubTypes   []string
	Attributes *Attributes
}

// NewInstrument builds an Instrument from an exchange symbol entry. Entries
// without a string "symbol" attribute are rejected.
func NewInstrument(attrs *Attributes) (Instrument, bool) {
	sym, ok := attrs.Get("symbol")
	if !ok || sym.Kind != KindString || sym.Str == "" {
		return Instrument{}, false
	}
	inst := Instrument{Symbol: sym.Str, Attributes: attrs, SubTypes: []string{}}
	if sub, ok := attrs.Get("underlyingSubType"); ok && sub.Kind == KindArray {
		for _, el := range sub.Arr {
			if el.Kind == KindString {
				inst.SubTypes = append(inst.SubTypes, el.Str)
			}
		}
	}
	return inst, true
}

// RateLimit is one entry of the exchange's advertised rate limits.
type RateLimit struct {
	RateLimitType string `json:"rateLimitType"`
	Interval      string `json:"interval"`
	IntervalNum   int64  `json:"intervalNum"`
	Limit         int64  `json:"limit"`
}

// ExchangeInfo is the subset of /fapi/v1/exchangeInfo the pipeline relies on.
// Symbols keep every attribute so filters can reference any of them.
type ExchangeInfo struct {
	Timezone   string        `json:"timezone,omitempty"`
	ServerTime int64         `json:"serverTime"`
	RateLimits []RateLimit   `json:"rateLimits"`
	Symbols    []*Attributes `json:"symbols"`
}

// Instruments returns every symbol entry that carries a usable symbol name.
func (e *ExchangeInfo) Instruments() []Instrument {
	out := make([]Instrument, 0, len(e.Symbols))
	for _, attrs := range e.Symbols {
		if attrs == nil {
			continue
		}
		if inst, ok := NewInstrument(attrs); ok {
			out = append(out, inst)
		}
	}
	return out
}
