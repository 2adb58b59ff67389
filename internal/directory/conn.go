package directory

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
)

// Conn is the directory client the adapter drives. *ldap.Conn satisfies it.
type Conn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
	Add(req *ldap.AddRequest) error
	Del(req *ldap.DelRequest) error
	Close() error
}

// Dialer opens a bound connection for a single adapter operation.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// LDAPDialer connects to an LDAP server and binds with the service account.
type LDAPDialer struct {
	cfg config.Directory
}

// NewLDAPDialer creates a dialer for the configured server.
func NewLDAPDialer(cfg config.Directory) *LDAPDialer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10
	}

	return &LDAPDialer{cfg: cfg}
}

// Dial establishes a connection to the LDAP server.
func (d *LDAPDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("dial", err)
	}

	hostPort := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	ldapURL := "ldap://" + hostPort
	if d.cfg.UseSSL {
		ldapURL = "ldaps://" + hostPort
	}

	var tlsConfig *tls.Config
	if d.cfg.UseSSL || d.cfg.UseTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: d.cfg.SkipVerify, //nolint:gosec // skipping verifying tls is ok
			ServerName:         d.cfg.Host,
		}
	}

	timeout := time.Duration(d.cfg.Timeout) * time.Second
	dialer := &net.Dialer{Timeout: timeout}

	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := ldap.DialURL(ldapURL, ldap.DialWithTLSConfig(tlsConfig), ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, wrap("connect", err)
	}

	// Upgrade to TLS if requested (for non-SSL connections)
	if !d.cfg.UseSSL && d.cfg.UseTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			closeConn(conn)

			return nil, wrap("start tls", errStartTLS)
		}
	}

	conn.SetTimeout(timeout)

	if d.cfg.BindDN != "" {
		if errBind := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); errBind != nil {
			closeConn(conn)

			return nil, wrap("service account bind", errBind)
		}
	}

	return conn, nil
}

func closeConn(conn Conn) {
	if errClose := conn.Close(); errClose != nil {
		log.Warn().Err(errClose).Msg("failed to close LDAP connection")
	}
}
