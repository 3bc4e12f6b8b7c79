package provisioning

import (
	"bytes"
	"fmt"
	"text/template"
)

const cloudConfigTemplate = `#cloud-config
ssh_pwauth: no
users:
  - name: {{.Username}}
    sudo: ALL=(ALL) NOPASSWD:ALL
    shell: /bin/bash
    ssh_authorized_keys:
      - "{{.PublicKey}}"
`

var cloudConfig = template.Must(template.New("cloud-config").Parse(cloudConfigTemplate))

// CloudConfigData represents the data for cloud-config template
type CloudConfigData struct {
	Username  string
	PublicKey string
}

// GenerateCloudConfig renders the user-data that creates the login user with the gmab key
func GenerateCloudConfig(username, publicKey string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("cloud-config requires a username")
	}

	var buf bytes.Buffer
	if err := cloudConfig.Execute(&buf, CloudConfigData{Username: username, PublicKey: publicKey}); err != nil {
		return "", fmt.Errorf("failed to execute cloud-config template: %w", err)
	}
	return buf.String(), nil
}
