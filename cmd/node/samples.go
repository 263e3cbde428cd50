package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/config"
	"github.com/nfrund/wirecall/internal/events"
	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/node"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
)

const heartbeatInterval = time.Second

var (
	sampleChannel     = transport.Channel{URI: "ipc", Stream: 10}
	multiParamChannel = transport.Channel{URI: "memory:multiparam", Stream: 1}
	gossipChannel     = transport.Channel{URI: "gossip:sample-events", Stream: 1}
)

// samples wires the sample interfaces into a node and its cluster
// container.
type samples struct {
	received   atomic.Int64
	ingress    atomic.Int64
	responses  atomic.Int64
	publishers []*publisher.Publisher
	// clusterPub sends SimpleEvents into the hosted cluster container.
	clusterPub *publisher.Publisher
}

func newSamples() *samples {
	return &samples{}
}

type sampleHandler struct {
	name  string
	count *atomic.Int64
}

func (h sampleHandler) OnEvent(value int64) {
	n := h.count.Add(1)
	slog.Debug("sample event received", "interface", h.name, "value", value, "received", n)
}

// replyingHandler counts cluster ingress and answers every event on
// SyncEventsResponse.
type replyingHandler struct {
	count *atomic.Int64
	reply *publisher.Publisher
}

func (h replyingHandler) OnEvent(value int64) {
	h.count.Add(1)
	if err := events.NewSyncEventsResponsePublisher(h.reply).OnEventResponse(value, value); err != nil {
		slog.Debug("cluster response not sent", "value", value, "error", err)
	}
}

type responseHandler struct {
	count *atomic.Int64
}

func (h responseHandler) OnEventResponse(correlationID, value int64) {
	n := h.count.Add(1)
	slog.Debug("cluster response received", "correlation_id", correlationID, "value", value, "received", n)
}

type multiParamHandler struct{}

func (multiParamHandler) OnEvent(e events.MultiParamEvent) {
	slog.Info("multi param event received", "interface", "MultiParamEvents", "string", e.String, "longs", len(e.Longs))
}

// register binds SampleEvents on ipc (and gossip when enabled),
// MultiParamEvents on the memory broker and SimpleEvents on the gRPC
// listener when one is configured.
func (s *samples) register(n *node.Node, cfg *config.Config) error {
	channels := []transport.Channel{sampleChannel}
	if cfg.GossipEnabled() {
		channels = append(channels, gossipChannel)
	}
	for _, ch := range channels {
		pub, err := n.CreatePublisher(events.SampleEventsDescriptor, ch)
		if err != nil {
			return err
		}
		s.publishers = append(s.publishers, pub)
		handler := sampleHandler{name: "SampleEvents@" + ch.Scheme(), count: &s.received}
		if err := subscribe(n, events.SampleEventsDescriptor, events.SampleEventsBindings(handler), ch); err != nil {
			return err
		}
	}

	if err := subscribe(n, events.MultiParamEventsDescriptor, events.MultiParamEventsBindings(multiParamHandler{}), multiParamChannel); err != nil {
		return err
	}

	if cfg.GRPCListen != "" {
		ch := transport.Channel{URI: "grpc://" + cfg.GRPCListen, Stream: 1}
		handler := sampleHandler{name: "SimpleEvents@grpc", count: &s.received}
		if err := subscribe(n, events.SimpleEventsDescriptor, events.SimpleEventsBindings(handler), ch); err != nil {
			return err
		}
	}
	return nil
}

func subscribe(n *node.Node, desc *schema.InterfaceDescriptor, b invoker.Bindings, ch transport.Channel) error {
	inv, err := invoker.New(desc, b)
	if err != nil {
		return err
	}
	return n.RegisterSubscriber(inv, ch)
}

// configureCluster serves SimpleEvents to cluster clients and answers each
// event on SyncEventsResponse.
func (s *samples) configureCluster(c *cluster.Configuration) {
	c.RegisterEgressPublisher(events.SyncEventsResponseDescriptor)
	reply, ok := c.PublisherFor(events.SyncEventsResponseDescriptor.Name)
	if !ok {
		slog.Error("Failed to register cluster egress publisher")
		return
	}
	inv, err := invoker.New(events.SimpleEventsDescriptor, events.SimpleEventsBindings(replyingHandler{count: &s.ingress, reply: reply}))
	if err != nil {
		slog.Error("Failed to build cluster ingress invoker", "error", err)
		return
	}
	c.RegisterIngressSubscriber(inv)
}

// connectCluster opens the client side of the sample cluster interfaces:
// SimpleEvents ingress and SyncEventsResponse egress.
func (s *samples) connectCluster(n *node.Node, client node.ClusterClient) error {
	pub, err := n.CreateClusterIngressPublisher(client, events.SimpleEventsDescriptor)
	if err != nil {
		return err
	}
	s.clusterPub = pub
	inv, err := invoker.New(events.SyncEventsResponseDescriptor, events.SyncEventsResponseBindings(responseHandler{count: &s.responses}))
	if err != nil {
		return err
	}
	return n.RegisterClusterEgressSubscriber(client, inv)
}

// heartbeat publishes an increasing value on every connected sample
// publisher and into the cluster until ctx is done.
func (s *samples) heartbeat(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			for _, p := range s.publishers {
				if !p.IsConnected() {
					continue
				}
				if err := events.NewSampleEventsPublisher(p).OnEvent(seq); err != nil {
					logger.Warn("heartbeat not sent", "channel", p.Channel().String(), "error", err)
				}
			}
			if s.clusterPub != nil && s.clusterPub.IsConnected() {
				if err := events.NewSimpleEventsPublisher(s.clusterPub).OnEvent(seq); err != nil {
					logger.Warn("cluster heartbeat not sent", "error", err)
				}
			}
		}
	}
}
