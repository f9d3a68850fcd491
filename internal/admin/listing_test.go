// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admin

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

func fixtures() []Visitor {
	return []Visitor{
		{ID: "a", Name: "Asha Rao", CompanyName: "Acme Tools", PersonalPhoneNumber: "9876543210", Address: "MG Road, Bengaluru", OTPVerified: true, CaptureMethod: "camera", CreatedAt: base},
		{ID: "b", Name: "bimal sen", CompanyName: "Zenith", PersonalPhoneNumber: "9123456780", CompanyPhoneNumber: "0801234567", OTPVerified: false, CaptureMethod: "upload", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c", Name: "Chitra", CompanyName: "acme labs", PersonalPhoneNumber: "8000000001", Address: "Pune", OTPVerified: true, CaptureMethod: "camera", CreatedAt: base.Add(time.Hour)},
	}
}

func ids(vs []Visitor) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out
}

func TestApply_DefaultsToNewestFirst(t *testing.T) {
	page, err := Apply(fixtures(), Query{})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"b", "c", "a"}, ids(page.Items)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, DefaultPerPage, page.PerPage)
	assert.Equal(t, []int{1}, page.PageNumbers)
}

func TestApply_Search(t *testing.T) {
	tests := []struct {
		term string
		want []string
	}{
		{"ACME", []string{"c", "a"}},
		{"bengaluru", []string{"a"}},
		{"91234", []string{"b"}},
		{"0801", []string{"b"}},
		{"nobody", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			page, err := Apply(fixtures(), Query{Search: tt.term})
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, ids(page.Items)); diff != "" {
				t.Errorf("search %q mismatch (-want +got):\n%s", tt.term, diff)
			}
		})
	}
}

func TestApply_VerifiedFilterAndSort(t *testing.T) {
	page, err := Apply(fixtures(), Query{Verified: FilterVerified, SortKey: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(page.Items))

	page, err = Apply(fixtures(), Query{Verified: FilterUnverified})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(page.Items))

	// Plain string comparison: upper case sorts before lower case.
	page, err = Apply(fixtures(), Query{SortKey: "companyName", SortDir: SortAscending})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(page.Items))

	page, err = Apply(fixtures(), Query{SortKey: "otpVerified", SortDir: SortDescending})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(page.Items))
}

func TestApply_DoesNotReorderInput(t *testing.T) {
	in := fixtures()
	_, err := Apply(in, Query{SortKey: "name", SortDir: SortDescending})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(in))
}

func TestApply_Pagination(t *testing.T) {
	var many []Visitor
	for i := 0; i < 57; i++ {
		many = append(many, Visitor{ID: fmt.Sprintf("v%02d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	page, err := Apply(many, Query{PerPage: 25, Page: 3, SortDir: SortAscending, SortKey: "createdAt"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, []string{"v50", "v51", "v52", "v53", "v54", "v55", "v56"}, ids(page.Items))

	page, err = Apply(many, Query{Page: 99})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Page, "page is clamped to the last one")
	assert.Len(t, page.Items, 7)

	empty, err := Apply(nil, Query{Page: 4})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
	assert.Empty(t, empty.PageNumbers)
}

func TestApply_RejectsBadQueries(t *testing.T) {
	_, err := Apply(fixtures(), Query{PerPage: 8})
	assert.ErrorContains(t, err, "unsupported page size")
	_, err = Apply(fixtures(), Query{SortKey: "favouriteColour"})
	assert.ErrorContains(t, err, "unknown sort key")
	_, err = Apply(fixtures(), Query{Verified: "maybe"})
	assert.ErrorContains(t, err, "unknown verified filter")
	_, err = Apply(fixtures(), Query{SortDir: "sideways", SortKey: "name"})
	assert.ErrorContains(t, err, "unknown sort direction")
}

func TestPageNumbers(t *testing.T) {
	tests := []struct {
		current, total int
		want           []int
	}{
		{1, 1, []int{1}},
		{1, 3, []int{1, 2, 3}},
		{1, 10, []int{1, 2, 3, 4, 5}},
		{6, 10, []int{4, 5, 6, 7, 8}},
		{10, 10, []int{6, 7, 8, 9, 10}},
		{9, 10, []int{6, 7, 8, 9, 10}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, PageNumbers(tt.current, tt.total)); diff != "" {
			t.Errorf("PageNumbers(%d, %d) mismatch (-want +got):\n%s", tt.current, tt.total, diff)
		}
	}
}

func TestValidateUpdate(t *testing.T) {
	ok := VisitorUpdate{PersonalPhoneNumber: "9876543210", CompanyPhoneNumber: "08012345678"}
	require.NoError(t, ValidateUpdate(ok))

	err := ValidateUpdate(VisitorUpdate{PersonalPhoneNumber: "12345"})
	var ferr *FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "personalPhoneNumber", ferr.Field)
	assert.Equal(t, "Personal Mobile Number is required and must be 10 digits starting with 6-9.", ferr.Message)

	err = ValidateUpdate(VisitorUpdate{PersonalPhoneNumber: "9876543210", CompanyPhoneNumber: "123"})
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Company Phone Number must be 10-15 digits.", ferr.Message)
}

func TestVisitorUpdate_Normalize(t *testing.T) {
	got := VisitorUpdate{PersonalPhoneNumber: "98765-43210-99", CompanyPhoneNumber: "(080) 1234 5678", Name: "  Asha "}.Normalize()
	assert.Equal(t, VisitorUpdate{PersonalPhoneNumber: "9876543210", CompanyPhoneNumber: "08012345678", Name: "Asha"}, got)
}
