// Package directorytest provides an in-memory directory for tests.
//
// Server stores entries by DN and evaluates search filters with go-ldap's
// filter compiler, so adapters under test run their real request building.
// Only the operations the directory adapter issues are supported: base and
// subtree search with paging, modify, add and delete.
package directorytest

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"

	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
)

// Server is an in-memory directory safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	entries  map[string]*entry
	failWith error
	block    chan struct{}

	dials    int
	searches int
	writes   int
}

type entry struct {
	dn    string
	attrs map[string]*attribute
}

type attribute struct {
	name   string
	values []string
}

// New creates an empty directory.
func New() *Server {
	return &Server{entries: make(map[string]*entry)}
}

// Dial implements directory.Dialer.
func (s *Server) Dial(_ context.Context) (directory.Conn, error) {
	s.mu.Lock()
	block := s.block
	s.dials++
	s.mu.Unlock()

	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	return &conn{s: s}, nil
}

// Adapter returns a directory adapter dialing this server.
func (s *Server) Adapter(opts ...directory.Option) *directory.Adapter {
	return directory.NewAdapter(s, opts...)
}

// FailWith makes every following dial return err. Pass nil to recover.
func (s *Server) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failWith = err
}

// Block makes dials wait until the returned release function is called.
func (s *Server) Block() (release func()) {
	ch := make(chan struct{})

	s.mu.Lock()
	s.block = ch
	s.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.block = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Put stores or replaces an entry. objectClass is passed like any other attribute.
func (s *Server) Put(dn string, attrs map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[normalize(dn)] = newEntry(dn, attrs)
}

// Remove deletes an entry, bypassing any adapter.
func (s *Server) Remove(dn string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, normalize(dn))
}

// AddValue appends value to attr directly, as an out-of-band edit would.
func (s *Server) AddValue(dn, attr, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[normalize(dn)]; ok {
		e.add(attr, []string{value})
	}
}

// RemoveValue deletes value from attr directly, as an out-of-band edit would.
func (s *Server) RemoveValue(dn, attr, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[normalize(dn)]; ok {
		e.remove(attr, []string{value})
	}
}

// Values returns a copy of the values of attr on dn.
func (s *Server) Values(dn, attr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[normalize(dn)]
	if !ok {
		return nil
	}

	if a, ok := e.attrs[strings.ToLower(attr)]; ok {
		return slices.Clone(a.values)
	}

	return nil
}

// Exists reports whether an entry is stored at dn.
func (s *Server) Exists(dn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[normalize(dn)]

	return ok
}

// Dials returns the number of connections opened so far.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dials
}

// Searches returns the number of search round trips served so far.
func (s *Server) Searches() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.searches
}

// Writes returns the number of successful modify, add and delete requests.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

func normalize(dn string) string {
	parts := strings.Split(dn, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}

	return strings.Join(parts, ",")
}

func newEntry(dn string, attrs map[string][]string) *entry {
	e := &entry{dn: dn, attrs: make(map[string]*attribute, len(attrs))}
	for name, values := range attrs {
		e.add(name, values)
	}

	return e
}

func (e *entry) clone() *entry {
	c := &entry{dn: e.dn, attrs: make(map[string]*attribute, len(e.attrs))}
	for k, a := range e.attrs {
		c.attrs[k] = &attribute{name: a.name, values: slices.Clone(a.values)}
	}

	return c
}

func (e *entry) has(name, value string) bool {
	a, ok := e.attrs[strings.ToLower(name)]
	if !ok {
		return false
	}

	return slices.ContainsFunc(a.values, func(v string) bool { return strings.EqualFold(v, value) })
}

// add appends values, reporting false when one of them already exists.
func (e *entry) add(name string, values []string) bool {
	key := strings.ToLower(name)

	a, ok := e.attrs[key]
	if !ok {
		a = &attribute{name: name}
		e.attrs[key] = a
	}

	for _, v := range values {
		if e.has(name, v) {
			return false
		}

		a.values = append(a.values, v)
	}

	return true
}

// remove deletes values, or the whole attribute when values is empty. It
// reports false when the attribute or one of the values is missing.
func (e *entry) remove(name string, values []string) bool {
	key := strings.ToLower(name)

	a, ok := e.attrs[key]
	if !ok {
		return false
	}

	if len(values) == 0 {
		delete(e.attrs, key)
		return true
	}

	for _, v := range values {
		idx := slices.IndexFunc(a.values, func(x string) bool { return strings.EqualFold(x, v) })
		if idx < 0 {
			return false
		}

		a.values = slices.Delete(a.values, idx, idx+1)
	}

	if len(a.values) == 0 {
		delete(e.attrs, key)
	}

	return true
}

func (e *entry) toLDAP() *ldap.Entry {
	attrs := make(map[string][]string, len(e.attrs))
	for _, a := range e.attrs {
		attrs[a.name] = slices.Clone(a.values)
	}

	return ldap.NewEntry(e.dn, attrs)
}

// conn is one connection to the in-memory server.
type conn struct {
	s      *Server
	closed bool
}

var errClosed = ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))

func (c *conn) Close() error {
	c.closed = true
	return nil
}

func (c *conn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if c.closed {
		return nil, errClosed
	}

	filter, err := ldap.CompileFilter(req.Filter)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultFilterError, err)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.searches++

	base := normalize(req.BaseDN)

	var matched []*ldap.Entry

	switch req.Scope {
	case ldap.ScopeBaseObject:
		e, ok := c.s.entries[base]
		if !ok {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		}

		if match(filter, e) {
			matched = append(matched, e.toLDAP())
		}
	default:
		keys := make([]string, 0, len(c.s.entries))
		for k := range c.s.entries {
			if k == base || strings.HasSuffix(k, ","+base) {
				keys = append(keys, k)
			}
		}

		slices.Sort(keys)

		for _, k := range keys {
			if e := c.s.entries[k]; match(filter, e) {
				matched = append(matched, e.toLDAP())
			}
		}
	}

	return page(req, matched), nil
}

// page applies the paged results control of req to the matched entries.
func page(req *ldap.SearchRequest, matched []*ldap.Entry) *ldap.SearchResult {
	paging, ok := ldap.FindControl(req.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
	if !ok || paging.PagingSize == 0 {
		return &ldap.SearchResult{Entries: matched}
	}

	offset := 0
	if len(paging.Cookie) > 0 {
		offset, _ = strconv.Atoi(string(paging.Cookie))
	}

	offset = min(offset, len(matched))
	end := min(offset+int(paging.PagingSize), len(matched))

	var cookie []byte
	if end < len(matched) {
		cookie = []byte(strconv.Itoa(end))
	}

	return &ldap.SearchResult{
		Entries:  matched[offset:end],
		Controls: []ldap.Control{&ldap.ControlPaging{PagingSize: paging.PagingSize, Cookie: cookie}},
	}
}

func (c *conn) Modify(req *ldap.ModifyRequest) error {
	if c.closed {
		return errClosed
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	stored, ok := c.s.entries[normalize(req.DN)]
	if !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}

	e := stored.clone()

	for _, change := range req.Changes {
		attr := change.Modification

		switch change.Operation {
		case ldap.AddAttribute:
			if !e.add(attr.Type, attr.Vals) {
				return ldap.NewError(ldap.LDAPResultAttributeOrValueExists, errors.New("value exists"))
			}
		case ldap.DeleteAttribute:
			if !e.remove(attr.Type, attr.Vals) {
				return ldap.NewError(ldap.LDAPResultNoSuchAttribute, errors.New("no such attribute"))
			}
		case ldap.ReplaceAttribute:
			e.remove(attr.Type, nil)

			if len(attr.Vals) > 0 {
				e.add(attr.Type, attr.Vals)
			}
		default:
			return ldap.NewError(ldap.LDAPResultUnwillingToPerform, errors.New("unsupported modify operation"))
		}
	}

	c.s.entries[normalize(req.DN)] = e
	c.s.writes++

	return nil
}

func (c *conn) Add(req *ldap.AddRequest) error {
	if c.closed {
		return errClosed
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	key := normalize(req.DN)
	if _, ok := c.s.entries[key]; ok {
		return ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("entry already exists"))
	}

	attrs := make(map[string][]string, len(req.Attributes))
	for _, a := range req.Attributes {
		attrs[a.Type] = append(attrs[a.Type], a.Vals...)
	}

	c.s.entries[key] = newEntry(req.DN, attrs)
	c.s.writes++

	return nil
}

func (c *conn) Del(req *ldap.DelRequest) error {
	if c.closed {
		return errClosed
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	key := normalize(req.DN)
	if _, ok := c.s.entries[key]; !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}

	delete(c.s.entries, key)
	c.s.writes++

	return nil
}

// match evaluates a compiled filter against an entry. Substring and ordering
// filters are not supported and never match.
func match(p *ber.Packet, e *entry) bool {
	switch p.Tag {
	case ldap.FilterAnd:
		for _, child := range p.Children {
			if !match(child, e) {
				return false
			}
		}

		return true
	case ldap.FilterOr:
		for _, child := range p.Children {
			if match(child, e) {
				return true
			}
		}

		return false
	case ldap.FilterNot:
		return len(p.Children) == 1 && !match(p.Children[0], e)
	case ldap.FilterEqualityMatch:
		if len(p.Children) != 2 { //nolint:mnd
			return false
		}

		return e.has(packetString(p.Children[0]), packetString(p.Children[1]))
	case ldap.FilterPresent:
		_, ok := e.attrs[strings.ToLower(packetString(p))]
		return ok
	default:
		return false
	}
}

func packetString(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}

	if p.Data != nil {
		return p.Data.String()
	}

	return ""
}
