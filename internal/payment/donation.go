// internal/payment/donation.go
//
// Donation → checkout options.

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Amount bounds in rupees.
const (
	MinDonation = 100
	MaxDonation = 10_000_000
)

var validate = validator.New()

// Donation is what the donation form collects.
type Donation struct {
	Name            string  `validate:"required,min=2,max=100"`
	Email           string  `validate:"required,email,max=255"`
	Phone           string  `validate:"omitempty,len=10,numeric"`
	PAN             string  `validate:"omitempty,len=10,alphanum"`
	Amount          float64 `validate:"gte=100,lte=10000000"`
	Type            string  `validate:"omitempty,oneof=one-time monthly sponsor"`
	Anonymous       bool
	DedicateTo      string `validate:"max=100"`
	DedicateMessage string `validate:"max=500"`
}

// Merchant is the fixed part of every checkout.
type Merchant struct {
	KeyID       string
	Currency    string
	Name        string
	Description string
	Image       string
	ThemeColor  string
}

// DefaultMerchant carries the organisation's branding.
func DefaultMerchant(keyID string) Merchant {
	return Merchant{
		KeyID:       keyID,
		Currency:    "INR",
		Name:        "AGR Foundation",
		Description: "Donation",
		Image:       "/favicon.svg",
		ThemeColor:  "#800000",
	}
}

// BuildOptions validates d and turns it into widget options.  Handlers are
// left for the caller to attach.
func BuildOptions(m Merchant, d Donation) (Options, error) {
	if err := validate.Struct(d); err != nil {
		return Options{}, err
	}

	notes := map[string]string{
		"donation_type": d.Type,
		"anonymous":     strconv.FormatBool(d.Anonymous),
	}
	if notes["donation_type"] == "" {
		notes["donation_type"] = "one-time"
	}
	if d.PAN != "" {
		notes["pan"] = d.PAN
	}
	if d.DedicateTo != "" {
		notes["dedicate_to"] = d.DedicateTo
	}
	if d.DedicateMessage != "" {
		notes["dedication_message"] = d.DedicateMessage
	}

	return Options{
		Key:         m.KeyID,
		Amount:      ToPaise(d.Amount),
		Currency:    m.Currency,
		Name:        m.Name,
		Description: m.Description,
		Image:       m.Image,
		Prefill:     Prefill{Name: d.Name, Email: d.Email, Contact: d.Phone},
		Notes:       notes,
		Theme:       Theme{Color: m.ThemeColor},
		Modal:       Modal{Escape: true, Animation: true},
	}, nil
}

// ToPaise converts rupees to paise, rounding to the nearest paisa.
func ToPaise(rupees float64) int64 { return int64(math.Round(rupees * 100)) }

// VerifySignature checks hex(HMAC-SHA256(orderID|paymentID, secret)).
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
