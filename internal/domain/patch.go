// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"encoding/json"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// ApplyPatch merges patch into a copy of item. Keys are JSON field names and
// nested objects merge key-wise; slices and maps are replaced and null resets
// a field. Unknown keys and an "id" key are rejected.
func ApplyPatch[T Record](item T, patch Patch) (T, error) {
	var zero T
	if _, ok := patch["id"]; ok {
		return zero, NewValidationError("the id of a record cannot be changed")
	}

	var out T
	data, err := json.Marshal(item)
	if err != nil {
		return zero, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, err
	}
	if len(patch) == 0 {
		return out, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		ZeroFields:  true,
		DecodeHook:  mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:      out,
	})
	if err != nil {
		return zero, err
	}
	if err := decoder.Decode(map[string]any(patch)); err != nil {
		return zero, NewValidationError("invalid update", err)
	}

	out.SetID(item.GetID())
	return out, nil
}
