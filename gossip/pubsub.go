package gossip

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"strings"

	"github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/pineappleworkshop/lightning/batchpool"
	"github.com/pineappleworkshop/lightning/consensuspipeline"
)

const TopicName = "lightning/consensus/v1"

// NewHost constructs the libp2p transport host the consensus gossip
// topic runs over, keyed by the node's own network identity (see
// nodeidentity.Identity.NetworkSecretKey) so every peer observes a
// stable, verifiable PeerID across restarts instead of a fresh random
// one each time the process starts. listenHostPort is the node's
// ordinary "host:port" bind address (e.g. cfg.BindAddr); it is
// translated to the multiaddr libp2p expects.
func NewHost(listenHostPort string, networkKey ed25519.PrivateKey) (host.Host, error) {
	priv, err := p2pcrypto.UnmarshalEd25519PrivateKey(networkKey)
	if err != nil {
		return nil, fmt.Errorf("gossip: unmarshal network key: %w", err)
	}
	maddr, err := listenMultiaddr(listenHostPort)
	if err != nil {
		return nil, fmt.Errorf("gossip: listen address: %w", err)
	}
	h, err := libp2p.New(libp2p.Identity(priv), libp2p.ListenAddrStrings(maddr))
	if err != nil {
		return nil, fmt.Errorf("gossip: construct libp2p host: %w", err)
	}
	return h, nil
}

// listenMultiaddr converts an ordinary "host:port" address (this
// node's configured bind_addr) into the "/ip4|ip6/host/tcp/port"
// multiaddr form libp2p.ListenAddrStrings requires.
func listenMultiaddr(hostPort string) (string, error) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", err
	}
	if host == "" {
		host = "0.0.0.0"
	}
	proto := "ip4"
	if strings.Contains(host, ":") {
		proto = "ip6"
	}
	return fmt.Sprintf("/%s/%s/tcp/%s", proto, host, port), nil
}

// Topic wraps a joined gossipsub topic and subscription, implementing
// consensuspipeline.PubSub by decoding each received message with
// Decode.
type Topic struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	selfID string
}

// Join subscribes to the consensus topic on ps, returning a Topic
// ready for Recv/Publish. selfID is the local peer ID, used to skip
// messages the node published itself.
func Join(ps *pubsub.PubSub, selfID string) (*Topic, error) {
	t, err := ps.Join(TopicName)
	if err != nil {
		return nil, fmt.Errorf("gossip: join topic: %w", err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("gossip: subscribe: %w", err)
	}
	return &Topic{topic: t, sub: sub, selfID: selfID}, nil
}

// Recv blocks for the next decodable message on the topic, skipping
// self-published and malformed messages.
func (g *Topic) Recv(ctx context.Context) (consensuspipeline.PubSubMessage, error) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return consensuspipeline.PubSubMessage{}, err
		}
		if msg.ReceivedFrom.String() == g.selfID {
			continue
		}
		out, err := Decode(msg.Data)
		if err != nil {
			continue
		}
		return out, nil
	}
}

// PublishBatch announces a locally-available batch to the topic, keyed
// by its own content digest so every receiver's Decode call verifies the
// same value this call publishes.
func (g *Topic) PublishBatch(ctx context.Context, batch []byte) error {
	digest := consensuspipeline.BatchDigest(batchpool.DigestBatch(batch))
	return g.topic.Publish(ctx, EncodeBatch(digest, batch))
}

// PublishCertificate announces a produced certificate to the topic.
func (g *Topic) PublishCertificate(ctx context.Context, c consensuspipeline.Certificate) error {
	return g.topic.Publish(ctx, EncodeCertificate(c))
}

// Close cancels the subscription and closes the topic handle.
func (g *Topic) Close() error {
	g.sub.Cancel()
	return g.topic.Close()
}
