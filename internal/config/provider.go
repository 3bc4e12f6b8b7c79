package config

import "os"

// Mask replaces secret values when configuration is printed
const Mask = "********"

// SecretKeys are the providers.json keys whose values are never printed
var SecretKeys = []string{"api_key", "access_key", "secret_key", "default_root_pass"}

// ProviderConfig is one providers.json entry. Which credential fields apply
// depends on the provider; unused ones stay empty and are omitted on save.
type ProviderConfig struct {
	// Linode, Hetzner, DigitalOcean API token; Yandex Cloud IAM token
	APIKey string `json:"api_key,omitempty"`

	// AWS
	AccessKey   string   `json:"access_key,omitempty"`
	SecretKey   string   `json:"secret_key,omitempty"`
	ListRegions []string `json:"list_regions,omitempty"`

	// GCP
	ProjectID       string `json:"project_id,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`

	// Yandex Cloud
	FolderID string `json:"folder_id,omitempty"`

	DefaultRegion   string `json:"default_region,omitempty"`
	DefaultImage    string `json:"default_image,omitempty"`
	DefaultType     string `json:"default_type,omitempty"`
	DefaultRootPass string `json:"default_root_pass,omitempty"`
	SSHUser         string `json:"ssh_user,omitempty"`
}

// Masked returns a copy safe to print: every non-empty secret becomes Mask.
func (pc ProviderConfig) Masked() ProviderConfig {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return Mask
	}
	pc.APIKey = mask(pc.APIKey)
	pc.AccessKey = mask(pc.AccessKey)
	pc.SecretKey = mask(pc.SecretKey)
	pc.DefaultRootPass = mask(pc.DefaultRootPass)
	return pc
}

// ExpandEnv returns a copy with ${VAR} references expanded, so tokens can
// live in the environment instead of providers.json.
func (pc ProviderConfig) ExpandEnv() ProviderConfig {
	pc.APIKey = os.ExpandEnv(pc.APIKey)
	pc.AccessKey = os.ExpandEnv(pc.AccessKey)
	pc.SecretKey = os.ExpandEnv(pc.SecretKey)
	pc.ProjectID = os.ExpandEnv(pc.ProjectID)
	pc.CredentialsFile = os.ExpandEnv(pc.CredentialsFile)
	pc.FolderID = os.ExpandEnv(pc.FolderID)
	pc.DefaultRootPass = os.ExpandEnv(pc.DefaultRootPass)
	return pc
}

// User returns the login user for instances of the named provider.
func (pc ProviderConfig) User(provider string) string {
	if pc.SSHUser != "" {
		return pc.SSHUser
	}
	if d, ok := ProviderDefaults[provider]; ok && d.SSHUser != "" {
		return d.SSHUser
	}
	return "root"
}

// DefaultGeneral seeds the configure prompts
var DefaultGeneral = General{
	SSHKeyPath:             "~/.ssh/id_ed25519.pub",
	DefaultLifetimeMinutes: DefaultLifetimeMinutes,
	DefaultProvider:        ProviderLinode,
}

// ProviderDefaults seed the configure prompts. They are never applied
// implicitly: a provider only exists once the user has configured it.
var ProviderDefaults = map[string]ProviderConfig{
	ProviderLinode: {
		DefaultRegion: "nl-ams",
		DefaultImage:  "linode/ubuntu22.04",
		DefaultType:   "g6-nanode-1",
		SSHUser:       "root",
	},
	ProviderAWS: {
		DefaultRegion: "eu-west-1",
		DefaultImage:  "ami-0574da719dca65348",
		DefaultType:   "t3.micro",
		SSHUser:       "ubuntu",
	},
	ProviderHetzner: {
		DefaultRegion: "nbg1",
		DefaultImage:  "ubuntu-22.04",
		DefaultType:   "cpx11",
		SSHUser:       "root",
	},
	ProviderDigitalOcean: {
		DefaultRegion: "ams3",
		DefaultImage:  "ubuntu-22-04-x64",
		DefaultType:   "s-1vcpu-1gb",
		SSHUser:       "root",
	},
	ProviderGCP: {
		DefaultRegion: "europe-west4-a",
		DefaultImage:  "projects/ubuntu-os-cloud/global/images/family/ubuntu-2204-lts",
		DefaultType:   "e2-micro",
		SSHUser:       "gmab",
	},
	ProviderYandexCloud: {
		DefaultRegion: "ru-central1-b",
		DefaultImage:  "",
		DefaultType:   "standard-v3:2:2",
		SSHUser:       "gmab",
	},
}
