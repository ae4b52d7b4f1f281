package models

import "encoding/json"

// extraFields holds JSON members this service does not model. The order and
// product collections are shared with the storefront, so anything we do not
// understand must survive a rewrite untouched.
type extraFields map[string]json.RawMessage

// decodeWithExtras unmarshals data into known and returns the members that
// known did not claim.
func decodeWithExtras(data []byte, known any) (extraFields, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	knownJSON, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	var claimed map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &claimed); err != nil {
		return nil, err
	}
	for k := range claimed {
		delete(all, k)
	}

	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeWithExtras marshals known and merges extra back in. Known members win.
func encodeWithExtras(known any, extra extraFields) ([]byte, error) {
	knownJSON, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return knownJSON, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
