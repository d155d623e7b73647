package ir

// Config represents the top-level project configuration.
type Config struct {
	Artifacts string              `pkl:"artifacts" yaml:"artifacts"`
	Networks  map[string]*Network `pkl:"networks" yaml:"networks"`
	Constants map[string]any      `pkl:"constants" yaml:"constants"`
	Resources []*Resource         `pkl:"resources" yaml:"resources"`
	State     *StateConfig        `pkl:"state" yaml:"state"`
	Exports   []*ExportConfig     `pkl:"exports" yaml:"exports"`
	Verify    *VerifyConfig       `pkl:"verify" yaml:"verify"`
	Deployer  *DeployerConfig     `pkl:"deployer" yaml:"deployer"`
	DevNode   *DevNodeConfig      `pkl:"devNode" yaml:"devNode"`

	// ExportEnabled is toggled by the environment or a flag, never by the file.
	ExportEnabled bool `pkl:"-" yaml:"-"`
}

// StateConfig selects where deployment records are persisted for durable networks.
type StateConfig struct {
	Type   string            `pkl:"type" yaml:"type"` // "local", "s3"
	Dir    string            `pkl:"dir" yaml:"dir"`
	Config map[string]string `pkl:"config" yaml:"config"`
}

// ExportConfig names the consumer-facing files written for one resource.
type ExportConfig struct {
	Resource      string `pkl:"resource" yaml:"resource"`
	AddressesFile string `pkl:"addressesFile" yaml:"addressesFile"`
	ABIFile       string `pkl:"abiFile" yaml:"abiFile"`
	SSMPrefix     string `pkl:"ssmPrefix" yaml:"ssmPrefix,omitempty"`
}

// VerifyConfig configures the block explorer verification API.
type VerifyConfig struct {
	APIURL       string `pkl:"apiUrl" yaml:"apiUrl"`
	APIKey       string `pkl:"apiKey" yaml:"apiKey,omitempty"`
	PollInterval string `pkl:"pollInterval" yaml:"pollInterval,omitempty"`
}

// DeployerConfig says where the deployer private key comes from:
// "env:NAME" or "secretsmanager:<secret-id>".
type DeployerConfig struct {
	Key    string `pkl:"key" yaml:"key"`
	Region string `pkl:"region" yaml:"region,omitempty"`
}

// DevNodeConfig configures the local chain container.
type DevNodeConfig struct {
	Image   string   `pkl:"image" yaml:"image"`
	Port    int      `pkl:"port" yaml:"port"`
	Command []string `pkl:"command" yaml:"command,omitempty"`
	Name    string   `pkl:"name" yaml:"name,omitempty"`
}
