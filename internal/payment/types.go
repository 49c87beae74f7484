// Package payment integrates the hosted checkout widget used for donations.
//
// The widget runs in the visitor's browser.  This package owns the parts
// that must be right on the server: the options handed to the widget, the
// one-time script injection, the lifecycle of an opened checkout, and the
// signature check on the success callback.
package payment

// Prefill seeds the widget's contact fields.
type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// Theme styles the widget.
type Theme struct {
	Color string `json:"color,omitempty"`
}

// Modal tunes the widget's overlay.  OnDismiss fires when the visitor
// closes it without paying.
type Modal struct {
	Escape    bool   `json:"escape"`
	Animation bool   `json:"animation"`
	OnDismiss func() `json:"-"`
}

// Response is delivered on successful payment.
type Response struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id,omitempty"`
	Signature string `json:"razorpay_signature,omitempty"`
}

// ErrorMetadata identifies the failed attempt.
type ErrorMetadata struct {
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
}

// ErrorDetail describes a failed payment.
type ErrorDetail struct {
	Code        string        `json:"code"`
	Description string        `json:"description"`
	Source      string        `json:"source"`
	Step        string        `json:"step"`
	Reason      string        `json:"reason"`
	Metadata    ErrorMetadata `json:"metadata"`
}

// ErrorResponse is the payload of the "payment.failed" event.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Options is the configuration handed to the widget.  Amount is in the
// currency's smallest unit (paise for INR).  Function fields stay on the
// server; the JSON form is what the page receives.
type Options struct {
	Key         string            `json:"key"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	OrderID     string            `json:"order_id,omitempty"`
	Prefill     Prefill           `json:"prefill"`
	Notes       map[string]string `json:"notes,omitempty"`
	Theme       Theme             `json:"theme"`
	Modal       Modal             `json:"modal"`

	Handler func(Response) `json:"-"`
}
