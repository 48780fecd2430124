package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BankDetails holds the organizer's settlement account as captured by
// the dashboard settings form.
type BankDetails struct {
	BankCode      string `json:"bank_code,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
}

type Organizer struct {
	bun.BaseModel `bun:"table:organizers"`

	ID               string      `json:"id" bun:"id,pk"`
	Name             string      `json:"name" bun:"name"`
	Email            string      `json:"email" bun:"email"`
	BankDetails      BankDetails `json:"bank_details,omitempty" bun:"bank_details,type:jsonb,nullzero"`
	SubaccountCode   string      `json:"subaccount_code,omitempty" bun:"subaccount_code,nullzero"`
	SplitCode        string      `json:"split_code,omitempty" bun:"split_code,nullzero"`
	PercentageCharge float64     `json:"percentage_charge,omitempty" bun:"percentage_charge,nullzero"`
	CreatedAt        time.Time   `json:"created_at" bun:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at,omitempty" bun:"updated_at,nullzero"`
}

// HasBankDetails reports whether settlement provisioning can create a
// real gateway subaccount for this organizer.
func (o *Organizer) HasBankDetails() bool {
	return o.BankDetails.BankCode != "" && o.BankDetails.AccountNumber != ""
}
