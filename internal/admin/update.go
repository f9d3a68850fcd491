// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admin

import (
	"regexp"
	"strings"
)

var (
	personalPhonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	companyPhonePattern  = regexp.MustCompile(`^[0-9]{10,15}$`)
)

// VisitorUpdate holds the fields an operator may edit.
type VisitorUpdate struct {
	Name                string `json:"name"`
	CompanyName         string `json:"companyName"`
	PersonalPhoneNumber string `json:"personalPhoneNumber"`
	CompanyPhoneNumber  string `json:"companyPhoneNumber"`
	Address             string `json:"address"`
	OTPVerified         bool   `json:"otpVerified"`
}

// UpdateFrom seeds an edit with the record's current values.
func UpdateFrom(v Visitor) VisitorUpdate {
	return VisitorUpdate{
		Name:                v.Name,
		CompanyName:         v.CompanyName,
		PersonalPhoneNumber: v.PersonalPhoneNumber,
		CompanyPhoneNumber:  v.CompanyPhoneNumber,
		Address:             v.Address,
		OTPVerified:         v.OTPVerified,
	}
}

// FieldError is a rejected edit with the text shown to the operator.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidateUpdate applies the backend's phone rules before sending.
func ValidateUpdate(u VisitorUpdate) error {
	if !personalPhonePattern.MatchString(u.PersonalPhoneNumber) {
		return &FieldError{Field: "personalPhoneNumber", Message: "Personal Mobile Number is required and must be 10 digits starting with 6-9."}
	}
	if u.CompanyPhoneNumber != "" && !companyPhonePattern.MatchString(u.CompanyPhoneNumber) {
		return &FieldError{Field: "companyPhoneNumber", Message: "Company Phone Number must be 10-15 digits."}
	}
	return nil
}

// Normalize strips non-digits from phone fields and trims text fields.
func (u VisitorUpdate) Normalize() VisitorUpdate {
	u.Name = strings.TrimSpace(u.Name)
	u.CompanyName = strings.TrimSpace(u.CompanyName)
	u.Address = strings.TrimSpace(u.Address)
	u.PersonalPhoneNumber = digits(u.PersonalPhoneNumber, 10)
	u.CompanyPhoneNumber = digits(u.CompanyPhoneNumber, 0)
	return u
}

func digits(s string, limit int) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		if limit > 0 && b.Len() == limit {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
