package configure

import (
	"strings"

	"gmab/internal/config"
)

// field is one prompt of a provider entry
type field struct {
	label  string
	secret bool
	get    func(*config.ProviderConfig) string
	set    func(*config.ProviderConfig, string)
}

func text(label string, ptr func(*config.ProviderConfig) *string) field {
	return field{
		label: label,
		get:   func(pc *config.ProviderConfig) string { return *ptr(pc) },
		set:   func(pc *config.ProviderConfig, v string) { *ptr(pc) = v },
	}
}

func secret(label string, ptr func(*config.ProviderConfig) *string) field {
	f := text(label, ptr)
	f.secret = true
	return f
}

var (
	apiKey      = func(pc *config.ProviderConfig) *string { return &pc.APIKey }
	accessKey   = func(pc *config.ProviderConfig) *string { return &pc.AccessKey }
	secretKey   = func(pc *config.ProviderConfig) *string { return &pc.SecretKey }
	projectID   = func(pc *config.ProviderConfig) *string { return &pc.ProjectID }
	credentials = func(pc *config.ProviderConfig) *string { return &pc.CredentialsFile }
	folderID    = func(pc *config.ProviderConfig) *string { return &pc.FolderID }
	region      = func(pc *config.ProviderConfig) *string { return &pc.DefaultRegion }
	image       = func(pc *config.ProviderConfig) *string { return &pc.DefaultImage }
	vmType      = func(pc *config.ProviderConfig) *string { return &pc.DefaultType }
	rootPass    = func(pc *config.ProviderConfig) *string { return &pc.DefaultRootPass }
	sshUser     = func(pc *config.ProviderConfig) *string { return &pc.SSHUser }
)

// listRegions edits the AWS list_regions array as a comma separated line
var listRegions = field{
	label: "Regions to list (comma separated, blank for the default region)",
	get: func(pc *config.ProviderConfig) string {
		return strings.Join(pc.ListRegions, ",")
	},
	set: func(pc *config.ProviderConfig, v string) {
		pc.ListRegions = nil
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				pc.ListRegions = append(pc.ListRegions, r)
			}
		}
	},
}

// fieldsFor returns the prompts of a provider in the order they are asked
func fieldsFor(provider string) []field {
	common := []field{
		text("Default region", region),
		text("Default image", image),
		text("Default instance type", vmType),
	}

	var fields []field
	switch provider {
	case config.ProviderAWS:
		fields = []field{secret("Access Key", accessKey), secret("Secret Key", secretKey)}
		fields = append(fields, common...)
		fields = append(fields, listRegions)
	case config.ProviderLinode:
		fields = append([]field{secret("API Key", apiKey)}, common...)
		fields = append(fields, secret("Default root password", rootPass))
	case config.ProviderGCP:
		fields = []field{
			text("Project ID", projectID),
			text("Service account credentials file (blank for application default)", credentials),
			text("Default zone", region),
			text("Default image", image),
			text("Default machine type", vmType),
		}
	case config.ProviderYandexCloud:
		fields = []field{
			secret("IAM token", apiKey),
			text("Folder ID", folderID),
			text("Default zone", region),
			text("Default image (blank for latest Ubuntu)", image),
			text("Default type (platform:cores:memoryGB)", vmType),
		}
	default:
		fields = append([]field{secret("API Key", apiKey)}, common...)
	}
	return append(fields, text("SSH user", sshUser))
}
