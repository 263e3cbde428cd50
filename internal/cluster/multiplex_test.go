package cluster_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/transport"
)

func TestRoleFlag(t *testing.T) {
	f := cluster.NewRoleFlag(cluster.Follower)
	assert.False(t, f.IsLeader())
	assert.Equal(t, "follower", f.Role().String())

	f.Set(cluster.Candidate)
	assert.False(t, f.IsLeader())

	f.Set(cluster.Leader)
	assert.True(t, f.IsLeader())
	assert.Equal(t, "leader", f.Role().String())
}

func TestLeaderGatingAcrossReplicas(t *testing.T) {
	ch := transport.Channel{URI: "ipc", Stream: 101}
	egress := &session{id: 1}

	roles := []*cluster.RoleFlag{
		cluster.NewRoleFlag(cluster.Leader),
		cluster.NewRoleFlag(cluster.Follower),
		cluster.NewRoleFlag(cluster.Follower),
	}
	var replicas []*publisher.Publisher
	for _, role := range roles {
		replicas = append(replicas, cluster.NewMultiplexingPublisher(simpleEvents, ch, egress, role))
	}

	// Every replica applies the same command and publishes the same event.
	for _, p := range replicas {
		require.NoError(t, p.Send(0, int64(101)), "followers report success")
	}
	assert.Equal(t, []any{int64(101)}, egress.received(t, simpleEvents))

	assert.True(t, replicas[0].IsConnected())
	assert.False(t, replicas[1].IsConnected())
	assert.False(t, replicas[2].IsConnected())

	// Leadership moves to replica 1; the role is read on the next offer.
	roles[0].Set(cluster.Follower)
	roles[1].Set(cluster.Leader)
	for _, p := range replicas {
		require.NoError(t, p.Send(0, int64(202)))
	}
	assert.Equal(t, []any{int64(101), int64(202)}, egress.received(t, simpleEvents))
	assert.False(t, replicas[0].IsConnected())
	assert.True(t, replicas[1].IsConnected())
}

type refusingSink struct{}

func (refusingSink) Offer([]byte) bool { return false }
func (refusingSink) IsConnected() bool { return false }

func TestLeaderSeesSinkRejection(t *testing.T) {
	ch := transport.Channel{URI: "ipc", Stream: 101}
	leader := cluster.NewMultiplexingPublisher(simpleEvents, ch, refusingSink{}, cluster.NewRoleFlag(cluster.Leader))
	follower := cluster.NewMultiplexingPublisher(simpleEvents, ch, refusingSink{}, cluster.NewRoleFlag(cluster.Follower))

	assert.ErrorIs(t, leader.Send(0, int64(1)), publisher.ErrNotAccepted)
	assert.NoError(t, follower.Send(0, int64(1)))
}
