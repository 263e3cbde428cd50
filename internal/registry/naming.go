package registry

import (
	"fmt"
	"strings"

	"github.com/nfrund/wirecall/internal/wireerr"
)

// Delimiter separates the interface name from the role in a cluster
// session principal.
const Delimiter = "__"

// Role is the suffix of a session principal token.
type Role string

const (
	RoleIngressPublisher Role = "IngressPublisher"
	RoleEgressPublisher  Role = "EgressPublisher"
	RoleEgressSubscriber Role = "EgressSubscriber"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleIngressPublisher, RoleEgressPublisher, RoleEgressSubscriber:
		return true
	}
	return false
}

// Name builds the token "<iface>__<role>".
func Name(iface string, role Role) string {
	return iface + Delimiter + string(role)
}

// IngressPublisherName is the principal a client uses to call iface on the
// cluster.
func IngressPublisherName(iface string) string {
	return Name(iface, RoleIngressPublisher)
}

// EgressPublisherName is the key of the cluster's egress publication for
// iface.
func EgressPublisherName(iface string) string {
	return Name(iface, RoleEgressPublisher)
}

// EgressSubscriberName is the principal a client uses to receive iface
// from the cluster.
func EgressSubscriberName(iface string) string {
	return Name(iface, RoleEgressSubscriber)
}

// ParseName splits token on the first delimiter. The role is returned
// as found; use Role.Valid to check it.
func ParseName(token string) (string, Role, error) {
	iface, role, ok := strings.Cut(token, Delimiter)
	if !ok {
		return "", "", wireerr.Configuration("", fmt.Sprintf("token %q has no %q delimiter", token, Delimiter))
	}
	if iface == "" {
		return "", "", wireerr.Configuration("", fmt.Sprintf("token %q has an empty interface name", token))
	}
	return iface, Role(role), nil
}

// ValidateInterfaceName rejects names that cannot round-trip through a
// token.
func ValidateInterfaceName(iface string) error {
	if iface == "" {
		return wireerr.Configuration("", "interface name is empty")
	}
	if strings.Contains(iface, Delimiter) {
		return wireerr.Configuration(iface, fmt.Sprintf("interface name contains %q", Delimiter))
	}
	return nil
}
