// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorObject is the caller-visible form of a single failure.
type ErrorObject struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// ErrorResponse is the body written for any failed request.
type ErrorResponse struct {
	Errors []ErrorObject `json:"errors"`
}

// AsFail extracts the Fail from an error chain. Errors that carry no Fail
// are wrapped as an unkeyed internal failure so callers always get a
// stable type and status code.
func AsFail(err error) *Fail {
	var fail *Fail
	if errors.As(err, &fail) {
		return fail
	}
	return Internal("", WithCause(err))
}

// WriteHTTP writes err as a JSON error response. Internal failure
// descriptions are withheld from the body.
func WriteHTTP(w http.ResponseWriter, err error) {
	fail := AsFail(err)
	obj := ErrorObject{
		Type:        fail.Type,
		Description: fail.Description,
		Properties:  fail.Properties,
	}
	status := fail.HTTPStatus()
	if status == http.StatusInternalServerError {
		obj.Description = ""
		obj.Properties = nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Errors: []ErrorObject{obj}})
}
