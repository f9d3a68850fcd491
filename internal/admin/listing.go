// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admin

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// VerifiedFilter narrows the listing by OTP status.
type VerifiedFilter string

const (
	FilterAll        VerifiedFilter = "all"
	FilterVerified   VerifiedFilter = "verified"
	FilterUnverified VerifiedFilter = "unverified"
)

const (
	DefaultPerPage = 10
	DefaultSortKey = "createdAt"
	pageWindow     = 5
	SortAscending  = "asc"
	SortDescending = "desc"
)

// PerPageOptions are the page sizes operators may pick.
var PerPageOptions = []int{10, 25, 50, 100}

// Query describes one view of the visitor table.
type Query struct {
	Search   string
	Verified VerifiedFilter
	SortKey  string
	SortDir  string
	Page     int
	PerPage  int
}

// Page is one page of the filtered, sorted listing.
type Page struct {
	Items       []Visitor
	Total       int
	Page        int
	PerPage     int
	TotalPages  int
	PageNumbers []int
}

var sortKeys = map[string]func(a, b Visitor) int{
	"name":                 func(a, b Visitor) int { return cmp.Compare(a.Name, b.Name) },
	"companyName":          func(a, b Visitor) int { return cmp.Compare(a.CompanyName, b.CompanyName) },
	"personalPhoneNumber":  func(a, b Visitor) int { return cmp.Compare(a.PersonalPhoneNumber, b.PersonalPhoneNumber) },
	"companyPhoneNumber":   func(a, b Visitor) int { return cmp.Compare(a.CompanyPhoneNumber, b.CompanyPhoneNumber) },
	"address":              func(a, b Visitor) int { return cmp.Compare(a.Address, b.Address) },
	"captureMethod":        func(a, b Visitor) int { return cmp.Compare(a.CaptureMethod, b.CaptureMethod) },
	"visitingCardImageUrl": func(a, b Visitor) int { return cmp.Compare(a.VisitingCardImageURL, b.VisitingCardImageURL) },
	"otpVerified":          func(a, b Visitor) int { return cmp.Compare(boolRank(a.OTPVerified), boolRank(b.OTPVerified)) },
	"createdAt":            func(a, b Visitor) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updatedAt":            func(a, b Visitor) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SortKeys lists the record keys the listing can sort by.
func SortKeys() []string {
	keys := make([]string, 0, len(sortKeys))
	for k := range sortKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Normalize fills defaults and rejects unknown keys and page sizes.
func (q Query) Normalize() (Query, error) {
	if q.Verified == "" {
		q.Verified = FilterAll
	}
	switch q.Verified {
	case FilterAll, FilterVerified, FilterUnverified:
	default:
		return q, fmt.Errorf("unknown verified filter %q (want all, verified or unverified)", q.Verified)
	}
	if q.SortKey == "" {
		q.SortKey = DefaultSortKey
		if q.SortDir == "" {
			q.SortDir = SortDescending
		}
	}
	if _, ok := sortKeys[q.SortKey]; !ok {
		return q, fmt.Errorf("unknown sort key %q (want one of %s)", q.SortKey, strings.Join(SortKeys(), ", "))
	}
	if q.SortDir == "" {
		q.SortDir = SortAscending
	}
	if q.SortDir != SortAscending && q.SortDir != SortDescending {
		return q, fmt.Errorf("unknown sort direction %q (want asc or desc)", q.SortDir)
	}
	if q.PerPage == 0 {
		q.PerPage = DefaultPerPage
	}
	if !slices.Contains(PerPageOptions, q.PerPage) {
		return q, fmt.Errorf("unsupported page size %d (want one of %v)", q.PerPage, PerPageOptions)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	return q, nil
}

// Apply filters, sorts and paginates records. records is not modified.
func Apply(records []Visitor, q Query) (Page, error) {
	q, err := q.Normalize()
	if err != nil {
		return Page{}, err
	}

	filtered := make([]Visitor, 0, len(records))
	for _, v := range records {
		if matchesSearch(v, q.Search) && matchesVerified(v, q.Verified) {
			filtered = append(filtered, v)
		}
	}

	compare := sortKeys[q.SortKey]
	slices.SortStableFunc(filtered, func(a, b Visitor) int {
		if q.SortDir == SortDescending {
			return compare(b, a)
		}
		return compare(a, b)
	})

	total := len(filtered)
	totalPages := (total + q.PerPage - 1) / q.PerPage
	page := q.Page
	switch {
	case totalPages == 0:
		page = 1
	case page > totalPages:
		page = totalPages
	}
	start := min((page-1)*q.PerPage, total)
	end := min(start+q.PerPage, total)

	return Page{
		Items:       filtered[start:end],
		Total:       total,
		Page:        page,
		PerPage:     q.PerPage,
		TotalPages:  totalPages,
		PageNumbers: PageNumbers(page, totalPages),
	}, nil
}

// PageNumbers returns up to five page links centred on current.
func PageNumbers(current, totalPages int) []int {
	if totalPages < 1 {
		return []int{}
	}
	start := max(1, current-pageWindow/2)
	end := min(totalPages, start+pageWindow-1)
	if end-start+1 < pageWindow {
		start = max(1, end-pageWindow+1)
	}
	nums := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		nums = append(nums, i)
	}
	return nums
}

// matchesSearch is case-insensitive over text fields and a plain substring
// match over phone numbers.
func matchesSearch(v Visitor, term string) bool {
	if term == "" {
		return true
	}
	lower := strings.ToLower(term)
	return strings.Contains(strings.ToLower(v.Name), lower) ||
		strings.Contains(v.PersonalPhoneNumber, term) ||
		strings.Contains(v.CompanyPhoneNumber, term) ||
		strings.Contains(strings.ToLower(v.Address), lower) ||
		strings.Contains(strings.ToLower(v.CompanyName), lower)
}

func matchesVerified(v Visitor, f VerifiedFilter) bool {
	switch f {
	case FilterVerified:
		return v.OTPVerified
	case FilterUnverified:
		return !v.OTPVerified
	default:
		return true
	}
}
