package tempo

import (
	"fmt"
	"log"
	"sort"

	"gopkg.in/yaml.v3"

	"tempocoord/pkg/cluster"
	"tempocoord/pkg/facts"
)

// BuildInput collects everything the document depends on. The builder is a
// pure function of this input; all validation happens before it runs.
type BuildInput struct {
	S3 facts.S3Fact
	// TLS is nil when TLS is disabled by configuration.
	TLS *facts.TLSFact
	// ServerName is the coordinator hostname workers use for TLS SNI.
	ServerName string
	// Receivers are the protocols to enable; unknown ones are dropped.
	Receivers []string
	// MembersByRole is the resolved, deduplicated cluster membership.
	MembersByRole map[cluster.Role][]string
	// RetentionHours is the total trace block retention.
	RetentionHours int
}

// Build assembles the full runtime config document.
func Build(in BuildInput) Document {
	doc := Document{
		AuthEnabled: false,
		Server:      buildServer(in),
		Distributor: buildDistributor(in),
		Ingester: Ingester{
			// flush a trace once no spans arrived for this long, and cut the
			// head block on whichever limit hits first
			TraceIdlePeriod:  "10s",
			MaxBlockBytes:    100,
			MaxBlockDuration: "30m",
		},
		Memberlist: buildMemberlist(in),
		Compactor: Compactor{
			Compaction: Compaction{
				CompactionWindow:        "1h",
				MaxCompactionObjects:    1000000,
				BlockRetention:          fmt.Sprintf("%dh", in.RetentionHours),
				CompactedBlockRetention: "1h",
			},
		},
		Querier: buildQuerier(in),
		Storage: buildStorage(in),
	}

	if in.TLS != nil {
		clientTLS := ClientTLS{
			TLSEnabled:    true,
			TLSCertPath:   TLSCertPath,
			TLSKeyPath:    TLSKeyPath,
			TLSCAPath:     TLSCAPath,
			TLSServerName: in.ServerName,
		}
		doc.IngesterClient = &Client{GRPCClientConfig: clientTLS}
		doc.MetricsGeneratorClient = &Client{GRPCClientConfig: clientTLS}
		doc.Querier.FrontendWorker.GRPCClientConfig = &clientTLS
		doc.Memberlist.TLSEnabled = true
		doc.Memberlist.TLSCertPath = TLSCertPath
		doc.Memberlist.TLSKeyPath = TLSKeyPath
		doc.Memberlist.TLSCAPath = TLSCAPath
		doc.Memberlist.TLSServerName = in.ServerName
	}

	return doc
}

// Render serializes the document to YAML.
func Render(doc Document) (string, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render tempo config: %w", err)
	}
	return string(out), nil
}

func buildServer(in BuildInput) Server {
	server := Server{
		HTTPListenPort: HTTPServerPort,
		GRPCListenPort: GRPCServerPort,
	}
	if in.TLS != nil {
		serverTLS := &ServerTLS{
			CertFile:       TLSCertPath,
			KeyFile:        TLSKeyPath,
			ClientCAFile:   TLSCAPath,
			ClientAuthType: "VerifyClientCertIfGiven",
		}
		server.HTTPTLSConfig = serverTLS
		server.GRPCTLSConfig = serverTLS
	}
	return server
}

func buildDistributor(in BuildInput) Distributor {
	enabled := make([]string, 0, len(in.Receivers))
	seen := make(map[string]bool)
	for _, proto := range in.Receivers {
		if seen[proto] {
			continue
		}
		seen[proto] = true
		if _, known := ReceiverPorts[proto]; !known {
			log.Printf("tempo: dropping unknown receiver protocol %q", proto)
			continue
		}
		enabled = append(enabled, proto)
	}
	sort.Strings(enabled)

	if len(enabled) == 0 {
		log.Printf("tempo: no receivers enabled, Tempo will be up but not functional")
	}

	// a nil receiver value enables the receiver with upstream defaults
	var receiverTLS any
	if in.TLS != nil {
		receiverTLS = map[string]any{
			"tls": map[string]string{
				"ca_file":   TLSCAPath,
				"cert_file": TLSCertPath,
				"key_file":  TLSKeyPath,
			},
		}
	}

	receivers := make(map[string]any)
	otlp := make(map[string]any)
	jaeger := make(map[string]any)
	for _, proto := range enabled {
		switch proto {
		case "zipkin":
			receivers["zipkin"] = receiverTLS
		case "otlp_http":
			otlp["http"] = receiverTLS
		case "otlp_grpc":
			otlp["grpc"] = receiverTLS
		case "jaeger_thrift_http":
			jaeger["thrift_http"] = receiverTLS
		case "jaeger_grpc":
			jaeger["grpc"] = receiverTLS
		}
	}
	if len(otlp) > 0 {
		receivers["otlp"] = map[string]any{"protocols": otlp}
	}
	if len(jaeger) > 0 {
		receivers["jaeger"] = map[string]any{"protocols": jaeger}
	}

	return Distributor{Receivers: receivers}
}

func buildMemberlist(in BuildInput) Memberlist {
	seen := make(map[string]bool)
	var members []string
	for _, addrs := range in.MembersByRole {
		for _, addr := range addrs {
			if !seen[addr] {
				seen[addr] = true
				members = append(members, fmt.Sprintf("%s:%d", addr, MemberlistPort))
			}
		}
	}
	sort.Strings(members)

	return Memberlist{
		AbortIfClusterJoinFails: false,
		BindPort:                MemberlistPort,
		JoinMembers:             members,
	}
}

// buildQuerier points queriers at the query-frontend. When query-frontend
// and distributor resolve to the same addresses the deployment is running in
// single-binary mode and localhost is correct.
func buildQuerier(in BuildInput) Querier {
	frontend := in.MembersByRole[cluster.RoleQueryFrontend]
	distributor := in.MembersByRole[cluster.RoleDistributor]

	addr := "localhost"
	if len(frontend) > 0 && !sameAddresses(frontend, distributor) {
		addr = frontend[0]
	}

	return Querier{
		FrontendWorker: FrontendWorker{
			FrontendAddress: fmt.Sprintf("%s:%d", addr, GRPCServerPort),
		},
	}
}

func buildStorage(in BuildInput) Storage {
	return Storage{
		Trace: TraceStorage{
			WAL: WAL{Path: WALPath},
			Pool: Pool{
				MaxWorkers: 400,
				QueueDepth: 20000,
			},
			Backend: "s3",
			S3: S3{
				Bucket:    in.S3.Bucket,
				Endpoint:  in.S3.Host(),
				AccessKey: in.S3.AccessKey,
				SecretKey: in.S3.SecretKey,
				Insecure:  in.S3.Insecure(),
			},
			// parquet v3 is the earliest block format with search support
			Block: Block{Version: "vParquet3"},
		},
	}
}

func sameAddresses(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
