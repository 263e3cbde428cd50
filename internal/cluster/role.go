package cluster

import "code.hybscloud.com/atomix"

// Role is the replica's current cluster role.
type Role uint32

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	}
	return "unknown"
}

// RoleProvider answers whether this replica currently leads. It is read
// on every offer and may change at any time.
type RoleProvider interface {
	IsLeader() bool
}

// RoleFlag is an atomic role cell written by the consensus collaborator
// and read by any goroutine.
type RoleFlag struct {
	v atomix.Uint32
}

var _ RoleProvider = (*RoleFlag)(nil)

// NewRoleFlag returns a flag holding initial.
func NewRoleFlag(initial Role) *RoleFlag {
	f := &RoleFlag{}
	f.Set(initial)
	return f
}

// Set stores the new role.
func (f *RoleFlag) Set(r Role) {
	f.v.Store(uint32(r))
}

// Role returns the stored role.
func (f *RoleFlag) Role() Role {
	return Role(f.v.Load())
}

// IsLeader reports whether the stored role is Leader.
func (f *RoleFlag) IsLeader() bool {
	return f.Role() == Leader
}
