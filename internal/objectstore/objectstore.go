// Package objectstore loads the static inputs a group server needs at
// bootstrap: which regions a group owns (group_{id}.json) and each
// region's nodes and edges (nodes_{region}.csv, vertices_{region}.csv).
//
// Grounded on the original source's CloudStorageProvider (access to
// Google Cloud Storage via a bare access/secret key pair — HMAC-style
// auth, the same shape S3 uses) and on this lineage's Store interface
// idiom in internal/topology/store.go, generalized from "persist one
// mutable graph" to "load a fixed, read-only graph at startup."
package objectstore

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/okdaichi/pathmesh/internal/graph"
)

// GroupManifest is the decoded contents of group_{id}.json: the list of
// regions this group owns.
type GroupManifest struct {
	GroupID uint32   `json:"group_id"`
	Regions []uint32 `json:"regions"`
}

// ObjectStore fetches the fixed graph-definition objects for a deployment.
// Implementations are read-only; nothing in this system ever writes
// objects back.
type ObjectStore interface {
	LoadGroupManifest(ctx context.Context, groupID uint32) (GroupManifest, error)
	LoadRegion(ctx context.Context, regionID uint32) (*graph.Graph, error)
}

// S3Store reads objects from an S3-API-compatible bucket. Pointed at GCS's
// S3-interoperability endpoint, this is how the original implementation's
// access-key/secret-key authenticated Google Cloud Storage client is
// expressed in Go.
type S3Store struct {
	client *s3.Client
	bucket string
}

// New builds an S3Store against the given bucket using client, which
// callers configure (endpoint, credentials, region) at construction —
// kept out of this package so tests can point it at a local stub.
func New(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// LoadGroupManifest fetches and decodes group_{id}.json.
func (s *S3Store) LoadGroupManifest(ctx context.Context, groupID uint32) (GroupManifest, error) {
	key := fmt.Sprintf("group_%d.json", groupID)
	body, err := s.get(ctx, key)
	if err != nil {
		return GroupManifest{}, err
	}
	defer body.Close()

	var m GroupManifest
	if err := json.NewDecoder(body).Decode(&m); err != nil {
		return GroupManifest{}, fmt.Errorf("objectstore: decoding %s: %w", key, err)
	}
	return m, nil
}

// LoadRegion fetches nodes_{region}.csv and vertices_{region}.csv and
// assembles them into a Graph.
func (s *S3Store) LoadRegion(ctx context.Context, regionID uint32) (*graph.Graph, error) {
	g := graph.New(regionID)

	nodesKey := fmt.Sprintf("nodes_%d.csv", regionID)
	nodesBody, err := s.get(ctx, nodesKey)
	if err != nil {
		return nil, err
	}
	if err := readNodes(nodesBody, g); err != nil {
		nodesBody.Close()
		return nil, fmt.Errorf("objectstore: %s: %w", nodesKey, err)
	}
	nodesBody.Close()

	verticesKey := fmt.Sprintf("vertices_%d.csv", regionID)
	verticesBody, err := s.get(ctx, verticesKey)
	if err != nil {
		return nil, err
	}
	if err := readVertices(verticesBody, g); err != nil {
		verticesBody.Close()
		return nil, fmt.Errorf("objectstore: %s: %w", verticesKey, err)
	}
	verticesBody.Close()

	return g, nil
}

func (s *S3Store) get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: fetching %s: %w", key, err)
	}
	return out.Body, nil
}

// readNodes parses the header-less CSV layout id,cord_x,cord_y,region.
func readNodes(r io.Reader, g *graph.Graph) error {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = 4
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := strconv.ParseUint(record[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing node id %q: %w", record[0], err)
		}
		x, err := strconv.ParseUint(record[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing cord_x %q: %w", record[1], err)
		}
		y, err := strconv.ParseUint(record[2], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing cord_y %q: %w", record[2], err)
		}
		region, err := strconv.ParseUint(record[3], 10, 32)
		if err != nil {
			return fmt.Errorf("parsing region %q: %w", record[3], err)
		}
		g.AddNode(&graph.Node{NodeID: id, RegionID: uint32(region), CoordX: x, CoordY: y})
	}
}

// readVertices parses the header-less CSV layout id,a,b,weight,region_bits,
// where region_bits is one field holding a fixed-width string of '0'/'1'
// characters, bit i set when the edge is tagged useful for region i.
func readVertices(r io.Reader, g *graph.Graph) error {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = 5
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := strconv.ParseUint(record[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing edge id %q: %w", record[0], err)
		}
		a, err := strconv.ParseUint(record[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing endpoint a %q: %w", record[1], err)
		}
		b, err := strconv.ParseUint(record[2], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing endpoint b %q: %w", record[2], err)
		}
		weight, err := strconv.ParseUint(record[3], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing weight %q: %w", record[3], err)
		}

		bits := graph.NewRegionBits(uint32(len(record[4])))
		for i, c := range record[4] {
			switch c {
			case '0':
			case '1':
				bits.Set(uint32(i))
			default:
				return fmt.Errorf("region_bits has unknown character %q", c)
			}
		}

		g.AddEdge(&graph.Edge{EdgeID: id, EndpointA: a, EndpointB: b, Weight: weight, RegionBits: bits})
	}
}
