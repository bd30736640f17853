// Package tempo renders the runtime configuration document shared by every
// cluster member. The schema follows the upstream Tempo configuration:
// https://grafana.com/docs/tempo/latest/configuration/
package tempo

// Tempo constants: well-known ports and in-container paths.
const (
	TLSCertPath = "/etc/worker/server.cert"
	TLSKeyPath  = "/etc/worker/private.key"
	TLSCAPath   = "/usr/local/share/ca-certificates/ca.crt"

	WALPath = "/etc/tempo/tempo_wal"

	MemberlistPort = 7946

	// HTTPServerPort is the built-in tempo_http protocol port.
	HTTPServerPort = 3200
	// GRPCServerPort deliberately avoids the 9095 default, which collides
	// with promtail.
	GRPCServerPort = 9096
)

// ReceiverPorts maps each supported receiver protocol to its default port,
// as defined by the upstream opentelemetry-collector receivers.
var ReceiverPorts = map[string]int{
	"zipkin":             9411,
	"otlp_grpc":          4317,
	"otlp_http":          4318,
	"jaeger_thrift_http": 14268,
	"jaeger_grpc":        14250,
}

// Document is the top-level Tempo config schema.
type Document struct {
	AuthEnabled            bool        `yaml:"auth_enabled"`
	Server                 Server      `yaml:"server"`
	Distributor            Distributor `yaml:"distributor"`
	Ingester               Ingester    `yaml:"ingester"`
	Memberlist             Memberlist  `yaml:"memberlist"`
	Compactor              Compactor   `yaml:"compactor"`
	Querier                Querier     `yaml:"querier"`
	Storage                Storage     `yaml:"storage"`
	IngesterClient         *Client     `yaml:"ingester_client,omitempty"`
	MetricsGeneratorClient *Client     `yaml:"metrics_generator_client,omitempty"`
}

// Server configures the shared http/grpc servers.
type Server struct {
	HTTPListenPort int        `yaml:"http_listen_port"`
	GRPCListenPort int        `yaml:"grpc_listen_port"`
	HTTPTLSConfig  *ServerTLS `yaml:"http_tls_config,omitempty"`
	GRPCTLSConfig  *ServerTLS `yaml:"grpc_tls_config,omitempty"`
}

// ServerTLS is the server-side TLS block.
type ServerTLS struct {
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
	ClientCAFile   string `yaml:"client_ca_file"`
	ClientAuthType string `yaml:"client_auth_type"`
}

// ClientTLS is the client-side TLS block used for inter-component traffic.
type ClientTLS struct {
	TLSEnabled    bool   `yaml:"tls_enabled"`
	TLSCertPath   string `yaml:"tls_cert_path"`
	TLSKeyPath    string `yaml:"tls_key_path"`
	TLSCAPath     string `yaml:"tls_ca_path"`
	TLSServerName string `yaml:"tls_server_name"`
}

// Client wraps a grpc client TLS config.
type Client struct {
	GRPCClientConfig ClientTLS `yaml:"grpc_client_config"`
}

// Distributor configures the trace receivers. Receivers is shaped exactly
// like the upstream YAML: a receiver key with a null value enables it with
// defaults, nested maps carry TLS settings.
type Distributor struct {
	Receivers map[string]any `yaml:"receivers"`
}

// Ingester controls block cutting and flushing.
type Ingester struct {
	TraceIdlePeriod  string `yaml:"trace_idle_period"`
	MaxBlockBytes    int    `yaml:"max_block_bytes"`
	MaxBlockDuration string `yaml:"max_block_duration"`
}

// Memberlist configures the gossip ring connecting all members.
type Memberlist struct {
	AbortIfClusterJoinFails bool     `yaml:"abort_if_cluster_join_fails"`
	BindPort                int      `yaml:"bind_port"`
	JoinMembers             []string `yaml:"join_members"`
	TLSEnabled              bool     `yaml:"tls_enabled,omitempty"`
	TLSCertPath             string   `yaml:"tls_cert_path,omitempty"`
	TLSKeyPath              string   `yaml:"tls_key_path,omitempty"`
	TLSCAPath               string   `yaml:"tls_ca_path,omitempty"`
	TLSServerName           string   `yaml:"tls_server_name,omitempty"`
}

// Compaction tuning.
type Compaction struct {
	CompactionWindow        string `yaml:"compaction_window"`
	MaxCompactionObjects    int    `yaml:"max_compaction_objects"`
	BlockRetention          string `yaml:"block_retention"`
	CompactedBlockRetention string `yaml:"compacted_block_retention"`
}

// Compactor wraps compaction tuning.
type Compactor struct {
	Compaction Compaction `yaml:"compaction"`
}

// FrontendWorker points queriers at the query-frontend.
type FrontendWorker struct {
	FrontendAddress  string     `yaml:"frontend_address"`
	GRPCClientConfig *ClientTLS `yaml:"grpc_client_config,omitempty"`
}

// Querier wraps the frontend worker config.
type Querier struct {
	FrontendWorker FrontendWorker `yaml:"frontend_worker"`
}

// S3 is the object storage backend block.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Insecure  bool   `yaml:"insecure"`
}

// WAL is the local write-ahead log location.
type WAL struct {
	Path string `yaml:"path"`
}

// Pool sizes the query worker pool.
type Pool struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueDepth int `yaml:"queue_depth"`
}

// Block pins the block format version.
type Block struct {
	Version string `yaml:"version"`
}

// TraceStorage is the trace backend configuration.
type TraceStorage struct {
	WAL     WAL    `yaml:"wal"`
	Pool    Pool   `yaml:"pool"`
	Backend string `yaml:"backend"`
	S3      S3     `yaml:"s3"`
	Block   Block  `yaml:"block"`
}

// Storage wraps the trace storage config.
type Storage struct {
	Trace TraceStorage `yaml:"trace"`
}
