package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderedObject is a JSON object value that preserves the source
// document's key order. Frame.Data's "observation" and "action"
// sub-objects decode into this type instead of a plain map, since the
// merge engine's schema is defined by the first frame's key order
// (spec.md §4.6 step 6), not an arbitrary map-iteration or sorted one.
type OrderedObject struct {
	Keys   []string
	Values map[string]interface{}
}

// NewOrderedObject builds an OrderedObject from an explicit key order
// and value set, for callers constructing one outside of JSON decode.
func NewOrderedObject(keys []string, values map[string]interface{}) OrderedObject {
	return OrderedObject{Keys: keys, Values: values}
}

// UnmarshalJSON walks the object token by token so key order survives
// the round trip through what would otherwise be Go's order-blind map
// decoding.
func (o *OrderedObject) UnmarshalJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("types: OrderedObject: expected JSON object, got %v", tok)
	}

	keys := make([]string, 0)
	values := make(map[string]interface{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("types: OrderedObject: expected object key, got %v", keyTok)
		}

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return err
		}

		keys = append(keys, key)
		values[key] = value
	}

	o.Keys = keys
	o.Values = values
	return nil
}

// MarshalJSON re-emits the object in its original key order.
func (o OrderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(o.Values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
