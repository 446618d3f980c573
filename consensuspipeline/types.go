// Package consensuspipeline converts a stream of gossiped BFT messages
// into a strictly ordered stream of ConsensusOutput values: a message
// receiver routes batches into the batch pool and certificates into the
// ordering engine, a Bullshark-style ordering engine (backed by
// heimdalr/dag) commits sub-dags, and an output producer fetches each
// sub-dag's referenced batches and emits them in commit order.
package consensuspipeline

import "github.com/pineappleworkshop/lightning/batchpool"

type BatchDigest = batchpool.Digest

// Certificate is a single DAG vertex in the BFT mempool: a header
// referencing the batch digests it carries, plus the signatures that
// authenticate it against the current Committee and WorkerCache.
type Certificate struct {
	Round   uint64
	Author  string
	Digests []BatchDigest
	// Parents are the IDs (round, author) of the certificates this one references,
	// forming the DAG edges heimdalr/dag tracks per round.
	Parents   []CertificateID
	Signature []byte
}

// CertificateID identifies a certificate within the DAG (round and
// author uniquely determine a vertex in Bullshark-style consensus).
type CertificateID struct {
	Round  uint64
	Author string
}

func (c Certificate) ID() CertificateID {
	return CertificateID{Round: c.Round, Author: c.Author}
}

// CommittedSubDag is the ordered sequence of certificates the ordering
// engine commits together in a single consensus decision.
type CommittedSubDag struct {
	Certificates []Certificate
}

// BatchWithDigest pairs a fetched batch with the digest it was fetched
// for.
type BatchWithDigest struct {
	Digest BatchDigest
	Batch  []byte
}

// CertificateBatches is the batches a single certificate referenced,
// fetched from the batch pool and kept grouped by the certificate they
// came from.
type CertificateBatches struct {
	Certificate CertificateID
	Batches     []BatchWithDigest
}

// ConsensusOutput is produced once every batch referenced by a
// CommittedSubDag has arrived, and is consumed exactly once by the
// execution engine. Batches is a per-certificate list, in the same order
// as SubDag.Certificates, not a flattened union across the sub-dag.
type ConsensusOutput struct {
	SubDag  CommittedSubDag
	Batches []CertificateBatches
}

// Committee is the current set of validators eligible to produce and
// vote on certificates.
type Committee interface {
	IsMember(author string) bool
}

// WorkerCache resolves which worker(s) a batch digest can be fetched
// from; consulted during certificate verification.
type WorkerCache interface {
	HasWorkerFor(digest BatchDigest) bool
}

// VerifyCertificate checks that c's author is a committee member, that
// workers has a worker for every digest, and that c carries a
// non-empty signature. The signature bytes are not cryptographically
// verified.
func VerifyCertificate(c Certificate, committee Committee, workers WorkerCache) bool {
	if !committee.IsMember(c.Author) {
		return false
	}
	for _, d := range c.Digests {
		if !workers.HasWorkerFor(d) {
			return false
		}
	}
	return len(c.Signature) > 0
}
