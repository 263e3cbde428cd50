// Package cluster connects compiled interfaces to a replicated service.
//
// The consensus layer that elects a leader and delivers session events is
// outside this package. It drives a Container (or a bare SessionRouter)
// through OnSessionOpen, OnSessionMessage and OnSessionClose, and reports
// leadership through OnRoleChange or a RoleFlag.
//
// Clients identify what they are by the principal they connect with:
//
//	SampleEvents__IngressPublisher   the client calls SampleEvents on the cluster
//	SampleEvents__EgressSubscriber   the client receives SampleEvents from the cluster
//
// Egress to a channel shared by every replica goes through a
// MultiplexingSink so that only the leader's frames leave the node.
package cluster
