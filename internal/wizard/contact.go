// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wizard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ManuGH/frontdesk/internal/validate"
	"golang.org/x/text/width"
)

var (
	mobilePattern       = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	companyPhonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)
)

// Contact holds the visitor's details from the first step.
type Contact struct {
	MobileNumber       string `json:"mobileNumber"`
	Name               string `json:"name,omitempty"`
	CompanyName        string `json:"companyName,omitempty"`
	CompanyPhoneNumber string `json:"companyPhoneNumber,omitempty"`
	Address            string `json:"address,omitempty"`
}

// NormalizeMobile narrows full-width digits, drops everything else and keeps
// at most ten digits.
func NormalizeMobile(raw string) string {
	return digitsOnly(raw, 10)
}

func digitsOnly(raw string, limit int) string {
	narrow := width.Narrow.String(raw)
	var b strings.Builder
	for _, r := range narrow {
		if r < '0' || r > '9' {
			continue
		}
		if b.Len() == limit {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidMobile reports whether number is a ten digit Indian mobile number.
func ValidMobile(number string) bool {
	return mobilePattern.MatchString(number)
}

func (c Contact) normalized() Contact {
	c.MobileNumber = NormalizeMobile(c.MobileNumber)
	c.Name = strings.TrimSpace(c.Name)
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	c.Address = strings.TrimSpace(c.Address)
	if c.CompanyPhoneNumber != "" {
		c.CompanyPhoneNumber = digitsOnly(c.CompanyPhoneNumber, 16)
	}
	return c
}

// validate wraps the first failing field's sentinel around the full
// validation report.
func (c Contact) validate() error {
	v := validate.New()
	v.Match("mobileNumber", c.MobileNumber, mobilePattern, "must be 10 digits starting with 6-9")
	if c.CompanyPhoneNumber != "" {
		v.Match("companyPhoneNumber", c.CompanyPhoneNumber, companyPhonePattern, "must be 10-15 digits")
	}
	err := v.Err()
	if err == nil {
		return nil
	}
	if !ValidMobile(c.MobileNumber) {
		return fmt.Errorf("%w: %w", ErrInvalidPhone, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalidCompanyPhone, err)
}
