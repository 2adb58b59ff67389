// Package mapper holds role mapper configuration: which roles of a realm are
// bound to a directory, and under which mode.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-playground/validator/v10"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
)

// Mode selects which store is authoritative for a mapper's roles.
type Mode string

// Modes.
const (
	// Import pulls directory memberships into the local store; local is authoritative afterwards.
	Import Mode = "import"
	// DirectoryOnly keeps memberships in the directory only.
	DirectoryOnly Mode = "directory_only"
	// ReadOnly merges both stores on read and writes locally.
	ReadOnly Mode = "read_only"
)

// MembershipType tells how a user is referenced from a role's membership attribute.
type MembershipType string

// Membership types.
const (
	MembershipDN  MembershipType = "dn"
	MembershipUID MembershipType = "uid"
)

// RetrieveStrategy tells how the roles of one user are found in the directory.
type RetrieveStrategy string

// Retrieve strategies.
const (
	// ByMemberAttribute searches role objects whose membership attribute names the user.
	ByMemberAttribute RetrieveStrategy = "member_attribute"
	// ByMemberOf reads the memberOf attribute of the user object.
	ByMemberOf RetrieveStrategy = "member_of"
)

const (
	defaultRoleNameAttribute   = "cn"
	defaultMembershipAttribute = "member"
	defaultMemberOfAttribute   = "memberOf"
	defaultRoleObjectClass     = "groupOfNames"
	uidAttribute               = "uid"

	targetRealm        = "realm"
	targetClientPrefix = "client:"
)

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals

// Target is the role set a mapper owns: the realm roles, or the roles of one client.
type Target struct {
	ClientID string
}

// ParseTarget parses "realm" or "client:<id>".
func ParseTarget(s string) (Target, error) {
	switch {
	case s == targetRealm:
		return Target{}, nil
	case strings.HasPrefix(s, targetClientPrefix) && len(s) > len(targetClientPrefix):
		return Target{ClientID: strings.TrimPrefix(s, targetClientPrefix)}, nil
	default:
		return Target{}, fmt.Errorf("%w: target %q is neither %q nor %q", ErrInvalidMapper, s, targetRealm, targetClientPrefix+"<id>")
	}
}

// String renders the target in its parseable form.
func (t Target) String() string {
	if t.ClientID == "" {
		return targetRealm
	}

	return targetClientPrefix + t.ClientID
}

// Contains reports whether role belongs to the target set.
func (t Target) Contains(role models.Role) bool {
	return role.ClientID == t.ClientID
}

// Config is one role mapper of a realm.
type Config struct {
	RealmID                 string           `validate:"required"`
	Name                    string           `validate:"required"`
	Target                  Target           `validate:"-"`
	Mode                    Mode             `validate:"required,oneof=import directory_only read_only"`
	RolesDN                 string           `validate:"required"`
	RoleObjectClasses       []string         `validate:"required,min=1,dive,required"`
	RoleNameAttribute       string           `validate:"required"`
	MembershipAttribute     string           `validate:"required"`
	MembershipAttributeType MembershipType   `validate:"required,oneof=dn uid"`
	RetrieveStrategy        RetrieveStrategy `validate:"required,oneof=member_attribute member_of"`
	MemberOfAttribute       string
	RolesFilter             string
	SyncInterval            time.Duration
}

// WithDefaults fills unset attribute names and strategies with the usual
// groupOfNames layout.
func (c Config) WithDefaults() Config {
	if c.RoleNameAttribute == "" {
		c.RoleNameAttribute = defaultRoleNameAttribute
	}

	if c.MembershipAttribute == "" {
		c.MembershipAttribute = defaultMembershipAttribute
	}

	if c.MembershipAttributeType == "" {
		c.MembershipAttributeType = MembershipDN
	}

	if c.RetrieveStrategy == "" {
		c.RetrieveStrategy = ByMemberAttribute
	}

	if c.MemberOfAttribute == "" {
		c.MemberOfAttribute = defaultMemberOfAttribute
	}

	if len(c.RoleObjectClasses) == 0 {
		c.RoleObjectClasses = []string{defaultRoleObjectClass}
	}

	return c
}

// Validate checks c after applying defaults and returns the completed config.
func (c Config) Validate() (Config, error) {
	c = c.WithDefaults()

	if err := validate.Struct(c); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrInvalidMapper, c.Name, err)
	}

	if c.RolesFilter != "" && (!strings.HasPrefix(c.RolesFilter, "(") || !strings.HasSuffix(c.RolesFilter, ")")) {
		return Config{}, fmt.Errorf("%w %s: roles filter must be enclosed in parentheses", ErrInvalidMapper, c.Name)
	}

	if _, err := ldap.CompileFilter(c.RoleFilter()); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrInvalidMapper, c.Name, err)
	}

	if _, err := ldap.ParseDN(c.RolesDN); err != nil {
		return Config{}, fmt.Errorf("%w %s: roles dn: %w", ErrInvalidMapper, c.Name, err)
	}

	return c, nil
}

// RoleFilter selects every role object of the mapper.
func (c Config) RoleFilter() string {
	var b strings.Builder

	b.WriteString("(&")

	for _, oc := range c.RoleObjectClasses {
		fmt.Fprintf(&b, "(%s=%s)", "objectClass", ldap.EscapeFilter(oc))
	}

	b.WriteString(c.RolesFilter)
	b.WriteString(")")

	return b.String()
}

// MemberFilter selects the role objects listing memberValue.
func (c Config) MemberFilter(memberValue string) string {
	return c.narrow(c.MembershipAttribute, memberValue)
}

// NameFilter selects the role object called name.
func (c Config) NameFilter(name string) string {
	return c.narrow(c.RoleNameAttribute, name)
}

func (c Config) narrow(attr, value string) string {
	f := c.RoleFilter()

	return f[:len(f)-1] + fmt.Sprintf("(%s=%s))", attr, ldap.EscapeFilter(value))
}

// RoleDN returns the DN a role object named name has under RolesDN.
func (c Config) RoleDN(name string) string {
	return fmt.Sprintf("%s=%s,%s", c.RoleNameAttribute, ldap.EscapeDN(name), c.RolesDN)
}

// MemberValue returns the value identifying a user in the membership
// attribute, given the user's DN.
func (c Config) MemberValue(userDN string) string {
	if c.MembershipAttributeType != MembershipUID {
		return userDN
	}

	dn, err := ldap.ParseDN(userDN)
	if err != nil {
		return userDN
	}

	for _, rdn := range dn.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, uidAttribute) {
				return attr.Value
			}
		}
	}

	return userDN
}

// UnderRolesDN reports whether dn is a direct or indirect child of RolesDN.
func (c Config) UnderRolesDN(dn string) bool {
	child, err := ldap.ParseDN(dn)
	if err != nil {
		return false
	}

	parent, err := ldap.ParseDN(c.RolesDN)
	if err != nil {
		return false
	}

	return parent.AncestorOfFold(child)
}

// FromSettings converts a [[Mappers]] block of the main configuration.
func FromSettings(m config.Mapper) (Config, error) {
	target, err := ParseTarget(m.Target)
	if err != nil {
		return Config{}, err
	}

	return Config{
		RealmID:                 m.Realm,
		Name:                    m.Name,
		Target:                  target,
		Mode:                    Mode(m.Mode),
		RolesDN:                 m.RolesDN,
		RoleObjectClasses:       m.RoleObjectClasses,
		RoleNameAttribute:       m.RoleNameAttribute,
		MembershipAttribute:     m.MembershipAttribute,
		MembershipAttributeType: MembershipType(m.MembershipAttributeType),
		RetrieveStrategy:        RetrieveStrategy(m.RetrieveStrategy),
		MemberOfAttribute:       m.MemberOfAttribute,
		RolesFilter:             m.RolesFilter,
		SyncInterval:            m.SyncInterval,
	}.Validate()
}

func toModel(c Config) models.RoleMapper {
	return models.RoleMapper{
		RealmID:                   c.RealmID,
		Name:                      c.Name,
		Target:                    c.Target.String(),
		Mode:                      string(c.Mode),
		RolesDN:                   c.RolesDN,
		RoleObjectClasses:         strings.Join(c.RoleObjectClasses, ","),
		RoleNameAttribute:         c.RoleNameAttribute,
		MembershipAttribute:       c.MembershipAttribute,
		MembershipAttributeType:   string(c.MembershipAttributeType),
		UserRolesRetrieveStrategy: string(c.RetrieveStrategy),
		MemberOfAttribute:         c.MemberOfAttribute,
		RolesFilter:               c.RolesFilter,
		SyncInterval:              c.SyncInterval,
	}
}

func fromModel(m models.RoleMapper) (Config, error) {
	target, err := ParseTarget(m.Target)
	if err != nil {
		return Config{}, err
	}

	return Config{
		RealmID:                 m.RealmID,
		Name:                    m.Name,
		Target:                  target,
		Mode:                    Mode(m.Mode),
		RolesDN:                 m.RolesDN,
		RoleObjectClasses:       strings.Split(m.RoleObjectClasses, ","),
		RoleNameAttribute:       m.RoleNameAttribute,
		MembershipAttribute:     m.MembershipAttribute,
		MembershipAttributeType: MembershipType(m.MembershipAttributeType),
		RetrieveStrategy:        RetrieveStrategy(m.UserRolesRetrieveStrategy),
		MemberOfAttribute:       m.MemberOfAttribute,
		RolesFilter:             m.RolesFilter,
		SyncInterval:            m.SyncInterval,
	}, nil
}
