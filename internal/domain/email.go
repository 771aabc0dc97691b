// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "context"

// EmailSender delivers rendered booking emails.
type EmailSender interface {
	Send(ctx context.Context, email RenderedEmail) error
}

// RenderedEmail is an email template with every placeholder substituted.
type RenderedEmail struct {
	To            string           `json:"to"`
	Subject       string           `json:"subject"`
	Body          string           `json:"body"`
	ICSAttachment *EmailAttachment `json:"-"`
}

// EmailAttachment represents an email attachment
type EmailAttachment struct {
	Filename    string // Name of the attachment file
	ContentType string // MIME type of the attachment
	Content     string // Base64 encoded content
}
