package directory

import (
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ObjectClassAttribute names the attribute holding an object's classes.
const ObjectClassAttribute = "objectClass"

// MembershipPlaceholder keeps a groupOfNames-style object schema valid once its
// last real member was removed. It is never reported as a member.
const MembershipPlaceholder = "cn=empty-membership-placeholder"

// ExternalObject is a directory entry in a protocol-neutral shape.
type ExternalObject struct {
	// DN is the distinguished identifier of the object.
	DN string
	// ObjectClasses lists the structural and auxiliary classes of the object.
	ObjectClasses []string
	// Attributes maps attribute names to their values, objectClass excluded.
	Attributes map[string][]string
}

// Values returns all values of the attribute, matching its name case-insensitively.
func (o ExternalObject) Values(name string) []string {
	for k, v := range o.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}

	return nil
}

// Value returns the first value of the attribute or an empty string.
func (o ExternalObject) Value(name string) string {
	if v := o.Values(name); len(v) > 0 {
		return v[0]
	}

	return ""
}

// HasValue reports whether the attribute holds value. Comparison is
// case-insensitive, as it is for DN and cn matching rules.
func (o ExternalObject) HasValue(name, value string) bool {
	return slices.ContainsFunc(o.Values(name), func(v string) bool {
		return strings.EqualFold(v, value)
	})
}

// Members returns the values of a membership attribute without the placeholder.
func (o ExternalObject) Members(name string) []string {
	values := o.Values(name)
	out := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" || strings.EqualFold(v, MembershipPlaceholder) {
			continue
		}

		out = append(out, v)
	}

	return out
}

// fromEntry converts a go-ldap entry.
func fromEntry(e *ldap.Entry) ExternalObject {
	obj := ExternalObject{
		DN:         e.DN,
		Attributes: make(map[string][]string, len(e.Attributes)),
	}

	for _, a := range e.Attributes {
		if strings.EqualFold(a.Name, ObjectClassAttribute) {
			obj.ObjectClasses = append(obj.ObjectClasses, a.Values...)
			continue
		}

		obj.Attributes[a.Name] = append([]string(nil), a.Values...)
	}

	return obj
}

// addRequest converts the object into an LDAP add request.
func (o ExternalObject) addRequest() *ldap.AddRequest {
	req := ldap.NewAddRequest(o.DN, nil)
	req.Attribute(ObjectClassAttribute, o.ObjectClasses)

	names := make([]string, 0, len(o.Attributes))
	for k := range o.Attributes {
		names = append(names, k)
	}

	slices.Sort(names)

	for _, k := range names {
		if len(o.Attributes[k]) > 0 {
			req.Attribute(k, o.Attributes[k])
		}
	}

	return req
}

// RequiresPlaceholder reports whether removing the last value of attr would
// violate the schema of the usual group object classes.
func RequiresPlaceholder(attr string) bool {
	return strings.EqualFold(attr, "member") || strings.EqualFold(attr, "uniqueMember")
}
