package directory

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

const (
	defaultPageSize = 500
	allAttributes   = "*"
)

// Adapter loads, searches and mutates directory objects.
type Adapter struct {
	dialer    Dialer
	pageSize  uint32
	timeLimit int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPageSize sets the number of entries requested per paged search round trip.
func WithPageSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.pageSize = uint32(n) //nolint:gosec // positive int fits
		}
	}
}

// WithTimeLimit sets the server side search time limit in seconds.
func WithTimeLimit(seconds int) Option {
	return func(a *Adapter) {
		a.timeLimit = seconds
	}
}

// NewAdapter creates an adapter dialing through d.
func NewAdapter(d Dialer, opts ...Option) *Adapter {
	a := &Adapter{dialer: d, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// LoadObjectByIdentifier reads the object stored at dn.
func (a *Adapter) LoadObjectByIdentifier(ctx context.Context, dn string) (ExternalObject, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return ExternalObject{}, err
	}
	defer closeConn(conn)

	return a.load(conn, dn)
}

func (a *Adapter) load(conn Conn, dn string) (ExternalObject, error) {
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0,
		a.timeLimit,
		false,
		"(objectClass=*)",
		[]string{allAttributes},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return ExternalObject{}, fmt.Errorf("%w: %s", ErrObjectNotFound, dn)
		}

		return ExternalObject{}, wrap("load", err)
	}

	if len(res.Entries) == 0 {
		return ExternalObject{}, fmt.Errorf("%w: %s", ErrObjectNotFound, dn)
	}

	return fromEntry(res.Entries[0]), nil
}

// SearchByFilter lazily enumerates the objects under baseDN matching filter.
// Each page costs one round trip; iteration stops at the first error, which is
// yielded with a zero object. Calling SearchByFilter again restarts the search.
func (a *Adapter) SearchByFilter(ctx context.Context, baseDN, filter string, attributes ...string) iter.Seq2[ExternalObject, error] {
	if len(attributes) == 0 {
		attributes = []string{allAttributes}
	} else {
		attributes = append(attributes, ObjectClassAttribute)
	}

	return func(yield func(ExternalObject, error) bool) {
		conn, err := a.dial(ctx)
		if err != nil {
			yield(ExternalObject{}, err)
			return
		}
		defer closeConn(conn)

		paging := ldap.NewControlPaging(a.pageSize)

		for {
			if errCtx := ctx.Err(); errCtx != nil {
				yield(ExternalObject{}, wrap("search", errCtx))
				return
			}

			req := ldap.NewSearchRequest(
				baseDN,
				ldap.ScopeWholeSubtree,
				ldap.NeverDerefAliases,
				0,
				a.timeLimit,
				false,
				filter,
				attributes,
				[]ldap.Control{paging},
			)

			res, errSearch := conn.Search(req)
			if errSearch != nil {
				yield(ExternalObject{}, wrap("search", errSearch))
				return
			}

			for _, entry := range res.Entries {
				if !yield(fromEntry(entry), nil) {
					return
				}
			}

			next, ok := ldap.FindControl(res.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
			if !ok || len(next.Cookie) == 0 {
				return
			}

			paging.SetCookie(next.Cookie)
		}
	}
}

// AddAttributeValue adds value to attr on obj. Adding a value that is already
// present succeeds. A membership placeholder is dropped in the same request.
func (a *Adapter) AddAttributeValue(ctx context.Context, obj ExternalObject, attr, value string) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer closeConn(conn)

	current, err := a.load(conn, obj.DN)
	if err != nil {
		return err
	}

	if current.HasValue(attr, value) {
		return nil
	}

	req := ldap.NewModifyRequest(obj.DN, nil)
	req.Add(attr, []string{value})

	if RequiresPlaceholder(attr) && current.HasValue(attr, MembershipPlaceholder) {
		req.Delete(attr, []string{MembershipPlaceholder})
	}

	if err = conn.Modify(req); err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists) {
		return wrap("add attribute value", err)
	}

	return nil
}

// RemoveAttributeValue removes value from attr on obj. Removing a value that is
// not present succeeds. When the last member of a group is removed, the
// membership placeholder takes its place.
func (a *Adapter) RemoveAttributeValue(ctx context.Context, obj ExternalObject, attr, value string) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer closeConn(conn)

	current, err := a.load(conn, obj.DN)
	if err != nil {
		return err
	}

	var stored string

	for _, v := range current.Values(attr) {
		if strings.EqualFold(v, value) {
			stored = v
			break
		}
	}

	if stored == "" {
		return nil
	}

	req := ldap.NewModifyRequest(obj.DN, nil)

	if RequiresPlaceholder(attr) && len(current.Members(attr)) == 1 && !current.HasValue(attr, MembershipPlaceholder) {
		req.Replace(attr, []string{MembershipPlaceholder})
	} else {
		req.Delete(attr, []string{stored})
	}

	if err = conn.Modify(req); err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchAttribute) {
		return wrap("remove attribute value", err)
	}

	return nil
}

// CreateObject adds obj to the directory.
func (a *Adapter) CreateObject(ctx context.Context, obj ExternalObject) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer closeConn(conn)

	if err = conn.Add(obj.addRequest()); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrObjectExists, obj.DN)
		}

		return wrap("create object", err)
	}

	return nil
}

// DeleteObject removes the object stored at dn.
func (a *Adapter) DeleteObject(ctx context.Context, dn string) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer closeConn(conn)

	if err = conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, dn)
		}

		return wrap("delete object", err)
	}

	return nil
}

func (a *Adapter) dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("dial", err)
	}

	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		return nil, wrap("dial", err)
	}

	return conn, nil
}
