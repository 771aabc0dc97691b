// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

const (
	// RequestIDHeader is the header name for the request ID
	RequestIDHeader string = "X-REQUEST-ID"

	// ContentTypeHeader is the header name for the content type
	ContentTypeHeader string = "Content-Type"

	// ContentTypeJSON is the media type of every API body
	ContentTypeJSON string = "application/json"

	// ContentTypeCalendar is the media type of calendar exports
	ContentTypeCalendar string = "text/calendar; charset=utf-8"
)

type contextRequestID string

// RequestIDContextID is the context key holding the request ID.
const RequestIDContextID contextRequestID = "X-REQUEST-ID"
