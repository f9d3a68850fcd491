// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/frontdesk/internal/admin"
	"github.com/ManuGH/frontdesk/internal/audit"
	"github.com/ManuGH/frontdesk/internal/daemon"
	"github.com/ManuGH/frontdesk/internal/settings"
	"github.com/spf13/cobra"
)

const adminTimeout = 30 * time.Second

var errNotLoggedIn = errors.New("not logged in; run 'frontdesk admin login' first")

// adminSession is an admin client plus the settings store holding its key.
type adminSession struct {
	client *admin.Client
	store  settings.Store
	audit  *audit.Logger
}

func (o *rootOptions) openAdmin(ctx context.Context, requireKey bool) (*adminSession, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := daemon.OpenSettings(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	key, err := settings.AdminAPIKey(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("read admin key: %w", err)
	}
	if requireKey && key == "" {
		_ = store.Close()
		return nil, errNotLoggedIn
	}
	return &adminSession{
		client: admin.NewClient(cfg.Backend.AdminBaseURL, key, adminTimeout),
		store:  store,
		audit:  audit.NewLogger(),
	}, nil
}

// finish closes the store and turns backend errors into operator text. A
// rejected key is forgotten so the next command asks for a fresh login.
func (s *adminSession) finish(ctx context.Context, err error) error {
	defer s.store.Close()
	if err == nil {
		return nil
	}
	var aerr *admin.Error
	if !errors.As(err, &aerr) {
		return err
	}
	if errors.Is(err, admin.ErrUnauthorized) && aerr.Operation != "login" {
		if cerr := settings.ClearAdminAPIKey(ctx, s.store); cerr != nil {
			return errors.Join(fmt.Errorf("%s: %w", admin.UserMessage(err), err), cerr)
		}
		s.audit.AdminLogout(ctx, "unauthorized")
	}
	return fmt.Errorf("%s: %w", admin.UserMessage(err), err)
}

func newAdminCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage visitor records on the backend",
	}
	cmd.AddCommand(
		newAdminLoginCmd(opts),
		newAdminLogoutCmd(opts),
		newAdminListCmd(opts),
		newAdminUpdateCmd(opts),
		newAdminDeleteCmd(opts),
		newAdminExportCmd(opts),
	)
	return cmd
}

func newAdminLoginCmd(opts *rootOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange admin credentials for an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if strings.TrimSpace(username) == "" || password == "" {
				return errors.New("username and password are required")
			}

			sess, err := opts.openAdmin(ctx, false)
			if err != nil {
				return err
			}
			key, err := sess.client.Login(ctx, username, password)
			sess.audit.AdminLogin(ctx, username, err)
			if err == nil {
				err = settings.SetAdminAPIKey(ctx, sess.store, key)
			}
			if err := sess.finish(ctx, err); err != nil {
				return err
			}
			_, err = fmt.Fprintln(opts.out, "Logged in.")
			return err
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password (read from stdin when omitted)")
	return cmd
}

func newAdminLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored admin API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := opts.openAdmin(ctx, false)
			if err != nil {
				return err
			}
			if err := sess.finish(ctx, settings.ClearAdminAPIKey(ctx, sess.store)); err != nil {
				return err
			}
			sess.audit.AdminLogout(ctx, "operator")
			_, err = fmt.Fprintln(opts.out, "Logged out.")
			return err
		},
	}
}

func bindQueryFlags(cmd *cobra.Command, q *admin.Query, verified *string) {
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "search name, company, address and phone numbers")
	cmd.Flags().StringVar(verified, "verified", string(admin.FilterAll), "filter by OTP status: all, verified or unverified")
	cmd.Flags().StringVar(&q.SortKey, "sort", "", "sort key (default createdAt, newest first)")
	cmd.Flags().StringVar(&q.SortDir, "order", "", "sort direction: asc or desc")
}

func newAdminListCmd(opts *rootOptions) *cobra.Command {
	var (
		q        admin.Query
		verified string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visitors with search, filter, sort and pagination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			q.Verified = admin.VerifiedFilter(verified)
			if _, err := q.Normalize(); err != nil {
				return err
			}
			sess, err := opts.openAdmin(ctx, true)
			if err != nil {
				return err
			}
			records, err := sess.client.List(ctx)
			if err := sess.finish(ctx, err); err != nil {
				return err
			}
			page, err := admin.Apply(records, q)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(opts.out)
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			return printPage(opts.out, page)
		},
	}
	bindQueryFlags(cmd, &q, &verified)
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.PerPage, "per-page", admin.DefaultPerPage, fmt.Sprintf("rows per page, one of %v", admin.PerPageOptions))
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printPage(w io.Writer, p admin.Page) error {
	if p.Total == 0 {
		_, err := fmt.Fprintln(w, "No visitors found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOMPANY\tPHONE\tVERIFIED\tMETHOD\tCREATED")
	for _, v := range p.Items {
		verified := "No"
		if v.OTPVerified {
			verified = "Yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.Name, v.CompanyName, v.PersonalPhoneNumber, verified, v.CaptureMethod,
			v.CreatedAt.Local().Format("02-01-2006 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	pages := make([]string, 0, len(p.PageNumbers))
	for _, n := range p.PageNumbers {
		if n == p.Page {
			pages = append(pages, fmt.Sprintf("[%d]", n))
			continue
		}
		pages = append(pages, fmt.Sprint(n))
	}
	_, err := fmt.Fprintf(w, "\nPage %d of %d (%d visitors)  %s\n", p.Page, p.TotalPages, p.Total, strings.Join(pages, " "))
	return err
}

func newAdminUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		edit     admin.VisitorUpdate
		verified bool
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Edit a visitor record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := opts.openAdmin(ctx, true)
			if err != nil {
				return err
			}
			records, err := sess.client.List(ctx)
			if err != nil {
				return sess.finish(ctx, err)
			}

			var current *admin.Visitor
			for i := range records {
				if records[i].ID == args[0] {
					current = &records[i]
					break
				}
			}
			if current == nil {
				return sess.finish(ctx, fmt.Errorf("visitor %s: %w", args[0], admin.ErrNotFound))
			}

			u := admin.UpdateFrom(*current)
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.Name = edit.Name
			}
			if flags.Changed("company") {
				u.CompanyName = edit.CompanyName
			}
			if flags.Changed("phone") {
				u.PersonalPhoneNumber = edit.PersonalPhoneNumber
			}
			if flags.Changed("company-phone") {
				u.CompanyPhoneNumber = edit.CompanyPhoneNumber
			}
			if flags.Changed("address") {
				u.Address = edit.Address
			}
			if flags.Changed("verified") {
				u.OTPVerified = verified
			}
			u = u.Normalize()
			if err := admin.ValidateUpdate(u); err != nil {
				return sess.finish(ctx, err)
			}

			updated, err := sess.client.Update(ctx, args[0], u)
			sess.audit.VisitorChanged(ctx, audit.EventVisitorUpdate, args[0], err)
			if err := sess.finish(ctx, err); err != nil {
				return err
			}
			_, err = fmt.Fprintf(opts.out, "Updated visitor %s (%s).\n", updated.ID, updated.Name)
			return err
		},
	}
	cmd.Flags().StringVar(&edit.Name, "name", "", "visitor name")
	cmd.Flags().StringVar(&edit.CompanyName, "company", "", "company name")
	cmd.Flags().StringVar(&edit.PersonalPhoneNumber, "phone", "", "personal mobile number (10 digits starting with 6-9)")
	cmd.Flags().StringVar(&edit.CompanyPhoneNumber, "company-phone", "", "company phone number (10-15 digits)")
	cmd.Flags().StringVar(&edit.Address, "address", "", "address")
	cmd.Flags().BoolVar(&verified, "verified", false, "OTP verified flag")
	return cmd
}

func newAdminDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a visitor record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			ctx := cmd.Context()
			sess, err := opts.openAdmin(ctx, true)
			if err != nil {
				return err
			}
			err = sess.client.Delete(ctx, args[0])
			sess.audit.VisitorChanged(ctx, audit.EventVisitorDelete, args[0], err)
			if err := sess.finish(ctx, err); err != nil {
				return err
			}
			_, err = fmt.Fprintf(opts.out, "Deleted visitor %s.\n", args[0])
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func newAdminExportCmd(opts *rootOptions) *cobra.Command {
	var (
		q        admin.Query
		verified string
		dir      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered visitor list to CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			q.Verified = admin.VerifiedFilter(verified)
			sess, err := opts.openAdmin(ctx, true)
			if err != nil {
				return err
			}
			records, err := sess.client.List(ctx)
			if err := sess.finish(ctx, err); err != nil {
				return err
			}
			rows, err := filteredAll(records, q)
			if err != nil {
				return err
			}
			path, err := admin.ExportFile(ctx, dir, rows, time.Now())
			if err != nil {
				return err
			}
			sess.audit.VisitorExport(ctx, path, len(rows))
			_, err = fmt.Fprintf(opts.out, "Exported %d visitors to %s\n", len(rows), path)
			return err
		},
	}
	bindQueryFlags(cmd, &q, &verified)
	cmd.Flags().StringVarP(&dir, "out-dir", "o", ".", "directory to write the CSV into")
	return cmd
}

// filteredAll walks every page of the listing so the export keeps its order.
func filteredAll(records []admin.Visitor, q admin.Query) ([]admin.Visitor, error) {
	q.PerPage = admin.PerPageOptions[len(admin.PerPageOptions)-1]
	out := make([]admin.Visitor, 0, len(records))
	for page := 1; ; page++ {
		q.Page = page
		p, err := admin.Apply(records, q)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if page >= p.TotalPages {
			return out, nil
		}
	}
}
